package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/waapi-kit/waapi-kit/internal/probe"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "List running Wwise authoring processes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		procs, err := probe.FindWwise(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(procs) == 0 {
			fmt.Fprintln(out, "no Wwise process found")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PID\tNAME\tSTARTED\tEXE")
		for _, p := range procs {
			started := "-"
			if !p.StartTime.IsZero() {
				started = p.StartTime.Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.PID, p.Name, started, p.Exe)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
