package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"sendit/internal/queue"
	"sendit/internal/session"
)

func newReceiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "receive <ticket>",
		Short: "Redeem a ticket and download its files",
		Long: "Redeem a ticket and show progress until every file has arrived.\n" +
			"Interrupting the command cancels the downloads still in flight.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket := args[0]
			return ctx.withSession(cmd, session.Options{}, func(cmdCtx context.Context, s *liveSession) error {
				notices := s.Controller().Notices(s.ctx)
				result := make(chan error, 1)
				go func() {
					result <- s.Controller().Download(s.ctx, ticket)
				}()
				return s.follow(cmdCtx, followOptions{
					queue:   queue.Inbound,
					pending: result,
					notices: notices,
					finished: func(st queue.State) bool {
						return !st.Downloading
					},
					interrupt: func(view *queueView) error {
						err := s.cancelInbound(nil)
						view.update(s.Store().State())
						view.finish()
						if err != nil {
							return err
						}
						return fmt.Errorf("download interrupted: %w", context.Canceled)
					},
				})
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "cancel [name...]",
		Short: "Cancel in-flight downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("name the downloads to cancel or pass --all")
			}
			return ctx.withSession(cmd, session.Options{}, func(cmdCtx context.Context, s *liveSession) error {
				if all {
					return s.cancelInbound(nil)
				}
				inbound := s.Store().Snapshot(queue.Inbound)
				var keys []string
				for _, name := range args {
					item, ok := findInbound(inbound, name)
					if !ok || item.Done {
						fmt.Fprintln(s.out, renderStatusLine("Cancel", statusWarn, name+": not an active download", s.colorize))
						continue
					}
					keys = append(keys, item.Key)
				}
				if len(keys) == 0 {
					return nil
				}
				return s.cancelInbound(keys)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Cancel every unfinished download")
	return cmd
}

// findInbound resolves a name typed on the command line to an inbound item.
// Inbound keys are the backend's names verbatim, so an exact match wins; a
// name that only differs in Unicode normalization still finds its item.
func findInbound(snap queue.Snapshot, name string) (queue.Item, bool) {
	if item, ok := snap.Get(name); ok {
		return item, true
	}
	want := norm.NFC.String(name)
	for _, item := range snap.Items {
		if norm.NFC.String(item.Key) == want {
			return item, true
		}
	}
	return queue.Item{}, false
}

// cancelInbound requests cancellation of keys (every unfinished download
// when keys is nil) and waits up to the configured time for the backend to
// confirm.
func (s *liveSession) cancelInbound(keys []string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CancelWait())
	defer cancel()

	var (
		requested int
		err       error
	)
	if keys == nil {
		requested, err = s.Controller().CancelAllInbound(ctx)
	} else {
		var errs []error
		for _, key := range keys {
			if cerr := s.Controller().CancelInbound(ctx, key); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		requested, err = len(keys), errors.Join(errs...)
	}
	if err != nil {
		return err
	}
	if requested == 0 {
		fmt.Fprintln(s.out, renderStatusLine("Cancel", statusInfo, "nothing to cancel", s.colorize))
		return nil
	}

	_, err = s.waitForState(ctx, 0, func(st queue.State) bool {
		for _, item := range st.Inbound.Items {
			if item.Cancelling && !item.Done {
				return false
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("backend did not confirm cancellation within %s", s.cfg.CancelWait().Round(time.Second))
	}
	fmt.Fprintln(s.out, renderStatusLine("Cancel", statusOK, fmt.Sprintf("%d download(s) cancelled", requested), s.colorize))
	return nil
}
