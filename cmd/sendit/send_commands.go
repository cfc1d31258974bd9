package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"sendit/internal/queue"
	"sendit/internal/session"
)

const defaultConfirmTimeout = 10 * time.Second

func newAddCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Queue local files for sending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(cmdCtx context.Context, s *liveSession) error {
				state, err := s.addFiles(cmdCtx, args, timeout)
				if err != nil {
					return err
				}
				fmt.Fprint(s.out, renderQueue(state.Outbound, s.colorize))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultConfirmTimeout, "How long to wait for the backend to report the files")
	return cmd
}

func newSendCommand(ctx *commandContext) *cobra.Command {
	var (
		timeout time.Duration
		follow  bool
	)
	cmd := &cobra.Command{
		Use:   "send <path>...",
		Short: "Queue files and print a ticket the receiver can redeem",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(cmdCtx context.Context, s *liveSession) error {
				state, err := s.addFiles(cmdCtx, args, timeout)
				if err != nil {
					return err
				}
				fmt.Fprint(s.out, renderQueue(state.Outbound, s.colorize))

				ticket, err := s.Controller().GenerateTicket(cmdCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "\nTicket: %s\n", ticket)
				if !follow {
					return nil
				}
				return s.follow(cmdCtx, followOptions{
					queue: queue.Outbound,
					finished: func(st queue.State) bool {
						return st.Outbound.AllDone()
					},
				})
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultConfirmTimeout, "How long to wait for the backend to report the files")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stay attached and show progress until every file is sent")
	return cmd
}

func newTicketCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ticket",
		Short: "Generate a ticket for the files already queued",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(cmdCtx context.Context, s *liveSession) error {
				ticket, err := s.Controller().GenerateTicket(cmdCtx)
				if err != nil {
					return err
				}
				fmt.Fprintln(s.out, ticket)
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "remove <name|path>...",
		Short: "Withdraw queued files from sending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(cmdCtx context.Context, s *liveSession) error {
				for _, arg := range args {
					key := queue.DeriveKey(arg)
					if err := s.Controller().RemoveFile(cmdCtx, arg); err != nil {
						return err
					}
					if _, err := s.waitForState(cmdCtx, timeout, func(st queue.State) bool {
						_, ok := st.Outbound.Get(key)
						return !ok
					}); err != nil {
						return fmt.Errorf("%s: removal not confirmed: %w", key, err)
					}
					fmt.Fprintln(s.out, renderStatusLine("Removed", statusOK, key, s.colorize))
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultConfirmTimeout, "How long to wait for the backend to confirm each removal")
	return cmd
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Withdraw every queued file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(cmdCtx context.Context, s *liveSession) error {
				if err := s.Controller().RemoveAllFiles(cmdCtx); err != nil {
					return err
				}
				if _, err := s.waitForState(cmdCtx, timeout, func(st queue.State) bool {
					return st.Outbound.Len() == 0
				}); err != nil {
					return fmt.Errorf("clear not confirmed: %w", err)
				}
				fmt.Fprintln(s.out, renderStatusLine("Outbound", statusOK, "cleared", s.colorize))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultConfirmTimeout, "How long to wait for the backend to confirm")
	return cmd
}

// addFiles issues an add for each path and waits until the backend reports
// all of them in the outbound queue.
func (s *liveSession) addFiles(ctx context.Context, paths []string, timeout time.Duration) (queue.State, error) {
	abs := make([]string, 0, len(paths))
	keys := make([]string, 0, len(paths))
	for _, path := range paths {
		resolved, err := filepath.Abs(path)
		if err != nil {
			return queue.State{}, fmt.Errorf("resolve %s: %w", path, err)
		}
		abs = append(abs, resolved)
		keys = append(keys, queue.DeriveKey(resolved))
	}
	if err := s.Controller().AddFiles(ctx, abs...); err != nil {
		return queue.State{}, err
	}
	state, err := s.waitForState(ctx, timeout, func(st queue.State) bool {
		for _, key := range keys {
			if _, ok := st.Outbound.Get(key); !ok {
				return false
			}
		}
		return true
	})
	if err != nil {
		return state, fmt.Errorf("backend did not report the added files: %w", err)
	}
	return state, nil
}
