package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bang0930/mcp-web/internal/models"
	"github.com/bang0930/mcp-web/internal/replay"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and retry work left behind by failed steps",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained drafts and pending infrastructure releases",
	RunE:  runPendingList,
}

var pendingRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry retained drafts and pending infrastructure releases",
	RunE:  runPendingRetry,
}

var pendingHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent workflow records",
	RunE:  runPendingHistory,
}

var (
	retryProfiles bool
	retryReleases bool
	historyLimit  int
)

func init() {
	pendingCmd.AddCommand(pendingListCmd, pendingRetryCmd, pendingHistoryCmd)

	pendingRetryCmd.Flags().BoolVar(&retryProfiles, "profiles", true, "Retry retained project drafts")
	pendingRetryCmd.Flags().BoolVar(&retryReleases, "releases", true, "Retry pending infrastructure releases")

	pendingHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of records to show")
}

type pendingWork struct {
	Profiles []models.PendingProfile `json:"profiles" yaml:"profiles"`
	Releases []models.PendingRelease `json:"releases" yaml:"releases"`
}

func runPendingList(cmd *cobra.Command, args []string) error {
	profiles, err := env.store.ListPendingProfiles()
	if err != nil {
		return err
	}
	releases, err := env.store.ListPendingReleases()
	if err != nil {
		return err
	}

	work := pendingWork{Profiles: profiles, Releases: releases}
	if ok, err := printStructured(cmd.OutOrStdout(), outputFormat, work); ok {
		return err
	}

	w := cmd.OutOrStdout()
	if len(profiles) == 0 && len(releases) == 0 {
		fmt.Fprintln(w, "Nothing pending")
		return nil
	}

	if len(profiles) > 0 {
		fmt.Fprintln(w, "Retained drafts:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tREPOSITORY\tATTEMPTS\tLAST ERROR")
		for _, p := range profiles {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", truncateID(p.ID), truncate(p.RepositoryURL, 50), p.Attempts, orDash(truncate(p.LastError, 40)))
		}
		tw.Flush()
	}

	if len(releases) > 0 {
		if len(profiles) > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, "Pending releases:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPROJECT\tSERVICE\tINSTANCE\tATTEMPTS\tLAST ERROR")
		for _, r := range releases {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n", truncateID(r.ID), r.ProjectID, r.ServiceID, r.InstanceID, r.Attempts, orDash(truncate(r.LastError, 40)))
		}
		tw.Flush()
	}
	return nil
}

type retryResult struct {
	Profiles *replay.Summary `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	Releases *replay.Summary `json:"releases,omitempty" yaml:"releases,omitempty"`
}

func runPendingRetry(cmd *cobra.Command, args []string) error {
	session := env.sessions.Current()
	var result retryResult

	if retryProfiles {
		sum, err := env.replayer.RetryProfiles(cmd.Context(), session)
		if err != nil {
			return err
		}
		result.Profiles = &sum
	}
	if retryReleases {
		sum, err := env.replayer.RetryReleases(cmd.Context(), session)
		if err != nil {
			return err
		}
		result.Releases = &sum
	}

	if ok, err := printStructured(cmd.OutOrStdout(), outputFormat, result); ok {
		return err
	}
	w := cmd.OutOrStdout()
	if result.Profiles != nil {
		fmt.Fprintf(w, "Drafts:   %d attempted, %d succeeded, %d failed\n",
			result.Profiles.Attempted, result.Profiles.Succeeded, result.Profiles.Failed)
	}
	if result.Releases != nil {
		fmt.Fprintf(w, "Releases: %d attempted, %d succeeded, %d failed\n",
			result.Releases.Attempted, result.Releases.Succeeded, result.Releases.Failed)
	}
	return nil
}

func runPendingHistory(cmd *cobra.Command, args []string) error {
	records, err := env.store.ListWorkflowRecords(historyLimit)
	if err != nil {
		return err
	}
	if ok, err := printStructured(cmd.OutOrStdout(), outputFormat, records); ok {
		return err
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "No workflow records")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tOUTCOME\tINPUTS\tDETAILS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Action,
			r.Outcome,
			truncateID(r.InputsHash),
			orDash(truncate(r.Details, 50)))
	}
	tw.Flush()
	return nil
}
