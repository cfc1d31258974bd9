package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sendit/internal/session"
	"sendit/internal/throttle"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		once       bool
		jsonOutput bool
		interval   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show both transfer queues",
		Long: "Show the outbound and inbound queues, redrawing as the backend reports\n" +
			"changes. With --once the queues are printed a single time.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{ReadOnly: true}, func(cmdCtx context.Context, s *liveSession) error {
				state := s.Store().State()
				if once {
					if jsonOutput {
						return writeJSON(cmd, state)
					}
					fmt.Fprint(s.out, renderState(state, s.colorize))
					return nil
				}
				return s.watch(cmdCtx, interval)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Print the queues once and exit")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "With --once, print the queue state as JSON")
	cmd.Flags().DurationVar(&interval, "interval", redrawInterval, "Minimum time between redraws")
	return cmd
}

// watch redraws both queues until the command is interrupted. Redraws are
// rate limited; the latest state is drawn on the next tick.
func (s *liveSession) watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = redrawInterval
	}
	gate := throttle.New(interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	state := s.Store().State()
	dirty := true
	draw := func() {
		dirty = false
		prefix := ""
		if s.colorize {
			prefix = ansiClear
		} else {
			prefix = "\n"
		}
		fmt.Fprint(s.out, prefix+renderState(state, s.colorize))
	}
	draw()

	watch := s.Store().Watch(s.ctx)
	notices := s.Controller().Notices(s.ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ctx.Done():
			return nil
		case next, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			state = next
			dirty = true
			if gate.IsFreeGlobal() {
				draw()
			}
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			if line := renderNotice(n, s.colorize); line != "" && !s.colorize {
				fmt.Fprintln(s.out, line)
			}
		case <-ticker.C:
			if dirty {
				draw()
			}
		}
	}
}
