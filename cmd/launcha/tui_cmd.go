package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bang0930/mcp-web/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse projects interactively",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	app := tui.New(tui.Deps{
		Registry: env.registry,
		Sessions: env.sessions,
		Teardown: env.teardown,
		Replay:   env.replayer,
		Timeout:  2 * env.cfg.RequestTimeout,
	})
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
