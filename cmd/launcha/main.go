package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "launcha",
	Short: "launcha - deploy GitHub repositories with predicted sizing",
	Long: `launcha creates projects from GitHub repositories: it predicts the
resources a repository needs, provisions an instance for it and keeps track
of what was deployed. Projects can be browsed, inspected and torn down.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Commands that never talk to a backend
		skipCommands := map[string]bool{
			"version":    true,
			"help":       true,
			"completion": true,
		}
		if skipCommands[cmd.Name()] {
			return nil
		}
		if err := validateOutput(outputFormat); err != nil {
			return err
		}

		e, err := setup(cmd)
		if err != nil {
			return err
		}
		env = e
		return nil
	},
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	cfgFile      string
	outputFormat string
	logLevel     string

	// env is built once per invocation by the root pre-run hook.
	env *environment
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default <data_dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "Output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}

// errorText renders err as the single line shown to the user.
func errorText(err error) string {
	var stepErr *workflow.StepError
	switch {
	case errors.As(err, &stepErr):
		return stepErr.Error()
	case errors.Is(err, apiclient.ErrUnauthenticated):
		return "not logged in, run: launcha login"
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Unauthorized() {
		return apiErr.Message + ", run: launcha login"
	}
	return apiclient.Message(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if env != nil {
		env.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errorText(err))
		os.Exit(1)
	}
}
