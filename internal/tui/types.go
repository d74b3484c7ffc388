package tui

import (
	"github.com/bang0930/mcp-web/internal/models"
	"github.com/bang0930/mcp-web/internal/registry"
	"github.com/bang0930/mcp-web/internal/teardown"
)

type projectsLoadedMsg struct {
	view registry.View
}

type projectDeletedMsg struct {
	project models.Project
	result  *teardown.Result
}

type commandResultMsg struct {
	message string
	refresh bool
}

type errMsg struct {
	err error
}
