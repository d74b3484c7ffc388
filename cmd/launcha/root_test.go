package main

import (
	"sort"
	"testing"

	"github.com/spf13/cobra"
)

// TestAllCommandsRegistered ensures every expected command and subcommand is
// registered on the root command tree.
func TestAllCommandsRegistered(t *testing.T) {
	expectedTopLevel := []string{
		"account",
		"login",
		"logout",
		"pending",
		"project",
		"signup",
		"tui",
		"version",
		"whoami",
	}
	assertEqualSorted(t, "root", expectedTopLevel, commandNames(rootCmd))

	expectedSubcommands := map[string][]string{
		"account": {"delete"},
		"pending": {"history", "list", "retry"},
		"project": {"create", "delete", "list", "show"},
	}

	for _, cmd := range rootCmd.Commands() {
		expected, ok := expectedSubcommands[cmd.Name()]
		if !ok {
			if names := commandNames(cmd); len(names) > 0 {
				t.Errorf("%s: unexpected subcommands %v", cmd.Name(), names)
			}
			continue
		}
		assertEqualSorted(t, cmd.Name(), expected, commandNames(cmd))
	}
}

func commandNames(cmd *cobra.Command) []string {
	var names []string
	for _, c := range cmd.Commands() {
		// cobra adds these on first Execute
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

func assertEqualSorted(t *testing.T, parent string, expected, got []string) {
	t.Helper()
	sort.Strings(expected)
	if len(expected) != len(got) {
		t.Errorf("%s: expected %d commands %v, got %d %v", parent, len(expected), expected, len(got), got)
		return
	}
	for i := range expected {
		if expected[i] != got[i] {
			t.Errorf("%s: expected %v, got %v", parent, expected, got)
			return
		}
	}
}
