package cmd

import (
	"fmt"

	"github.com/sarchlab/shadowmem/shadow"
	"github.com/spf13/cobra"
)

// demoPatches is the set of patches recorded by the demo command.
var demoPatches = []shadow.Patch{
	{Address: 0x2123, Value: 0xa1},
	{Address: 0x1123, Value: 0xa1},
	{Address: 0, Value: 0xde},
	{Address: 100, Value: 0xad},
	{Address: 7, Value: 7},
	{Address: 8, Value: 8},
}

func newDemoCmd(opts *options) *cobra.Command {
	var dumpPages bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Record a fixed set of patches and list the marked addresses.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracker, err := opts.buildTracker()
			if err != nil {
				return err
			}

			recordPatches(tracker, demoPatches)

			out := cmd.OutOrStdout()
			for addr := range tracker.MarkedAddresses() {
				fmt.Fprintf(out, "got patch @ %x\n", addr)
			}

			if !dumpPages {
				return nil
			}

			tracker.View(func(m *shadow.Manager) {
				err = m.DumpPages(out)
			})

			return err
		},
	}

	cmd.Flags().BoolVar(&dumpPages, "dump-pages", false,
		"Print a hex dump of every page.")

	return cmd
}
