package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/utils"
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded live runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRuns(cmd.Context())
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(ctx context.Context) error {
	if err := requireDB(); err != nil {
		utils.ShowError("Run journal unavailable", err, nil)
		return err
	}

	runs, err := DB.ListRuns(ctx, runsLimit)
	if err != nil {
		utils.ShowError("Failed to list runs", err, nil)
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN\tEFFECT\tSTARTED\tDURATION\tITERATIONS\tRENDERS\tFAILURES")
	fmt.Fprintln(w, "---\t------\t-------\t--------\t----------\t-------\t--------")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			shortID(r.ID),
			r.Effect,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			fmtDuration(r.StoppedAt.Sub(r.StartedAt)),
			r.Iterations,
			r.Renders,
			r.Failures,
		)
	}
	w.Flush()
	return nil
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
