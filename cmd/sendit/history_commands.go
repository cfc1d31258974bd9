package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sendit/internal/history"
	"sendit/internal/queue"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		direction  string
		outcome    string
		limit      int
		jsonOutput bool
	)
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := history.ListOptions{Limit: limit}
			if direction != "" {
				id := queue.ID(strings.ToLower(direction))
				if !id.Valid() {
					return fmt.Errorf("invalid direction %q (want outbound or inbound)", direction)
				}
				opts.Direction = string(id)
			}
			if outcome != "" {
				opts.Outcome = history.Outcome(strings.ToLower(outcome))
			}
			return withHistory(ctx, func(store *history.Store) error {
				entries, err := store.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No transfers recorded")
					return nil
				}
				fmt.Fprintln(out, renderHistory(entries, time.Now()))
				return nil
			})
		},
	}
	historyCmd.Flags().StringVar(&direction, "direction", "", "Only show outbound or inbound transfers")
	historyCmd.Flags().StringVar(&outcome, "outcome", "", "Only show completed, failed, aborted, or removed transfers")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	historyCmd.AddCommand(newHistoryTicketsCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func newHistoryTicketsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Show issued tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				tickets, err := store.Tickets(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tickets) == 0 {
					fmt.Fprintln(out, "No tickets recorded")
					return nil
				}
				rows := make([][]string, 0, len(tickets))
				now := time.Now()
				for _, t := range tickets {
					rows = append(rows, []string{
						t.Ticket,
						strconv.Itoa(t.FileCount),
						humanize.RelTime(t.CreatedAt, now, "ago", "from now"),
					})
				}
				fmt.Fprintln(out, renderTable([]column{textCol("Ticket"), numCol("Files"), textCol("Issued")}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum tickets to show (0 for all)")
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return withHistory(ctx, func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history entries\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove entries finished before this long ago")
	return cmd
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.New("transfer history is disabled (history.enabled = false)")
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func renderHistory(entries []history.Entry, now time.Time) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			humanize.RelTime(e.FinishedAt, now, "ago", "from now"),
			queueLabel(queue.ID(e.Direction)),
			e.Key,
			humanize.Bytes(e.Size),
			string(e.Outcome),
			e.Reason,
		})
	}
	return renderTable([]column{
		textCol("Finished"), textCol("Direction"), textCol("Name"), numCol("Size"), textCol("Outcome"), pathCol("Reason"),
	}, rows)
}
