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

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var (
		commit  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "preview <path>...",
		Short: "Validate files and show what would be queued",
		Long: "Validate paths with the backend and list the files that would be added,\n" +
			"skipping names already queued. With --commit the previewed files are added.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				paths = append(paths, abs)
			}
			return ctx.withSession(cmd, session.Options{}, func(cmdCtx context.Context, s *liveSession) error {
				preview, err := s.Controller().DragEnter(cmdCtx, paths)
				if err != nil {
					return err
				}
				if len(preview) == 0 {
					fmt.Fprintln(s.out, renderStatusLine("Preview", statusInfo, "nothing new to add", s.colorize))
					return nil
				}
				fmt.Fprint(s.out, renderPreview(preview, s.colorize))
				if !commit {
					s.Controller().DragLeave()
					return nil
				}

				if _, err := s.Controller().Drop(cmdCtx); err != nil {
					return err
				}
				state, err := s.waitForState(cmdCtx, timeout, func(st queue.State) bool {
					for _, item := range preview {
						if _, ok := st.Outbound.Get(item.Key); !ok {
							return false
						}
					}
					return true
				})
				if err != nil {
					return fmt.Errorf("backend did not report the added files: %w", err)
				}
				fmt.Fprint(s.out, "\n"+renderQueue(state.Outbound, s.colorize))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "Add the previewed files to the outbound queue")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultConfirmTimeout, "How long to wait for the backend to report added files")
	return cmd
}
