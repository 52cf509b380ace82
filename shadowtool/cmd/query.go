package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueryCmd(opts *options) *cobra.Command {
	var (
		patchArgs []string
		beginStr   string
		endStr     string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Record patches and tell if a range holds any of them.",
		Long: "`query --patch 0x1000=1 --begin 0xfff --end 0x1001` records " +
			"the patches and prints true if any byte in [begin, end] is marked.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			patches, err := parsePatches(patchArgs)
			if err != nil {
				return err
			}

			begin, err := parseAddr(beginStr)
			if err != nil {
				return err
			}

			end, err := parseAddr(endStr)
			if err != nil {
				return err
			}

			tracker, err := opts.buildTracker()
			if err != nil {
				return err
			}

			recordPatches(tracker, patches)

			marked, err := tracker.IsMarkedInRange(begin, end)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), marked)

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&patchArgs, "patch", nil,
		"A patch in addr=value form. Can be repeated.")
	cmd.Flags().StringVar(&beginStr, "begin", "", "First address of the range.")
	cmd.Flags().StringVar(&endStr, "end", "", "Last address of the range.")

	_ = cmd.MarkFlagRequired("begin")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}
