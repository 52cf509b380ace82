package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sarchlab/shadowmem/monitoring"
	"github.com/spf13/cobra"
)

func newMonitorCmd(opts *options) *cobra.Command {
	var (
		patchArgs  []string
		port        int
		openBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Record patches and serve the monitor until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			patches, err := parsePatches(patchArgs)
			if err != nil {
				return err
			}

			tracker, err := opts.buildTracker()
			if err != nil {
				return err
			}

			recordPatches(tracker, patches)

			if !cmd.Flags().Changed("port") {
				port = opts.cfg.MonitorPort
			}

			monitor := monitoring.NewMonitor(tracker).WithPortNumber(port)
			if openBrowser {
				monitor.WithBrowser()
			}

			url := monitor.StartServer()
			fmt.Fprintln(cmd.OutOrStdout(), url)

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(
				context.Background(), 5*time.Second)
			defer cancel()

			return monitor.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringArrayVar(&patchArgs, "patch", nil,
		"A patch in addr=value form. Can be repeated.")
	cmd.Flags().IntVar(&port, "port", 0,
		"Port of the monitor. 0 picks a free port.")
	cmd.Flags().BoolVar(&openBrowser, "open-browser", false,
		"Open the monitor in the default browser.")

	return cmd
}
