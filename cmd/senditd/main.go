// Command senditd runs the loopback transfer backend: it serves the bridge
// socket the sendit client connects to and redeems its own tickets by
// copying files into a local download directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:           "senditd",
		Short:         "Run the loopback SendIt backend",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&opts.downloadDir, "download-dir", "", "Where redeemed files are written (default <data_dir>/downloads)")
	cmd.Flags().StringVar(&opts.rate, "rate", "", "Pace downloads to this many bytes per second, e.g. 2MB")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().IntVar(&opts.retain, "retain-events", 4096, "Events kept for clients that connect later")
	return cmd
}
