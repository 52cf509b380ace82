// Package cmd provides the command-line interface of shadowtool.
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/shadowmem/config"
	"github.com/sarchlab/shadowmem/datarecording"
	"github.com/sarchlab/shadowmem/shadow"
	"github.com/sarchlab/shadowmem/tracing"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// options carries the settings shared by all subcommands.
type options struct {
	rangeScan string
	recordDB  string

	cfg      config.Config
	logger   *zap.Logger
	recorder datarecording.DataRecorder
	exec     *datarecording.ExecRecorder
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "shadowtool",
		Short: "shadowtool records and inspects sparse shadow memory.",
		Long: `shadowtool records byte patches into a sparse shadow memory and ` +
			`answers point and range queries about them. Settings are read ` +
			`from SHADOW_* environment variables and an optional .env file; ` +
			`flags win over both.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return opts.close()
		},
	}

	root.PersistentFlags().StringVar(&opts.rangeScan, "range-scan", "",
		"How multi-page range queries are scanned, full or reference.")
	root.PersistentFlags().StringVar(&opts.recordDB, "record-db", "",
		"Record every patch into <path>.sqlite3.")

	root.AddCommand(
		newDemoCmd(opts),
		newQueryCmd(opts),
		newMonitorCmd(opts),
	)

	return root
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if !cmd.Flag("range-scan").Changed {
		o.rangeScan = cfg.RangeScan
	}

	if !cmd.Flag("record-db").Changed {
		o.recordDB = cfg.RecordDB
	}

	logger, err := tracing.NewLogger(tracing.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = logger

	return nil
}

// buildTracker creates the Manager the subcommands work on, with logging and
// optional patch recording attached.
func (o *options) buildTracker() (*shadow.Locked, error) {
	mode, err := shadow.ParseRangeScanMode(o.rangeScan)
	if err != nil {
		return nil, err
	}

	builder := shadow.MakeBuilder().
		WithRangeScanMode(mode).
		WithHook(tracing.NewLogHook(o.logger))

	if o.recordDB != "" {
		o.recorder = datarecording.New(o.recordDB)
		patchRecorder := tracing.NewPatchRecorder(o.recorder)
		builder = builder.WithHook(patchRecorder)

		o.exec = datarecording.NewExecRecorder(o.recorder)
		o.exec.Start()
		o.exec.Add("Session", patchRecorder.Session())
		o.exec.Add("Range Scan", mode.String())

		o.logger.Info("recording patches",
			zap.String("db", o.recordDB),
			zap.String("session", patchRecorder.Session()))
	}

	return builder.BuildLocked(), nil
}

func (o *options) close() error {
	if o.logger != nil {
		_ = o.logger.Sync()
	}

	if o.recorder == nil {
		return nil
	}

	o.exec.End()

	err := o.recorder.Close()
	o.recorder = nil
	o.exec = nil

	return err
}

// parsePatches converts "addr=value" pairs into patches. Both numbers accept
// the 0x, 0o and 0b prefixes.
func parsePatches(args []string) ([]shadow.Patch, error) {
	patches := make([]shadow.Patch, 0, len(args))

	for _, s := range args {
		addrStr, valueStr, found := strings.Cut(s, "=")
		if !found {
			return nil, fmt.Errorf("patch %q is not in addr=value form", s)
		}

		addr, err := parseAddr(addrStr)
		if err != nil {
			return nil, err
		}

		value, err := strconv.ParseUint(strings.TrimSpace(valueStr), 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid patch value %q: %w", valueStr, err)
		}

		patches = append(patches, shadow.Patch{Address: addr, Value: byte(value)})
	}

	return patches, nil
}

func parseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}

	return addr, nil
}

func recordPatches(tracker shadow.Tracker, patches []shadow.Patch) {
	for _, p := range patches {
		tracker.Record(p.Address, p.Value)
	}
}
