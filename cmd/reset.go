package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/sentinel-live/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB        bool
	resetSnapshots bool
	resetDir       string
	resetYes       bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (run journal, overlay snapshots)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetSnapshots {
			resetDB = true
			resetSnapshots = true
		}
		return runReset(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "journal", false, "Clear the run journal")
	resetCmd.Flags().BoolVar(&resetSnapshots, "snapshots", false, "Clear overlay snapshots")
	resetCmd.Flags().StringVar(&resetDir, "overlay-out", "", "Overlay snapshot directory to clear")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func runReset(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	reader := bufio.NewReader(in)

	if resetDB {
		if DB == nil {
			fmt.Fprintln(errOut, "⚠️  No database configured, skipping run journal.")
		} else if resetYes || confirm(reader, out, "⚠️  Are you sure you want to DROP the run journal?") {
			fmt.Fprintln(out, "🗑️  Clearing Run Journal...")
			if err := DB.Reset(ctx); err != nil {
				utils.ShowError("Failed to reset database", err, nil)
				return err
			}
		}
	}

	if resetSnapshots {
		if resetDir == "" {
			fmt.Fprintln(errOut, "⚠️  No --overlay-out directory given, skipping overlay snapshots.")
		} else if resetYes || confirm(reader, out, fmt.Sprintf("⚠️  Are you sure you want to delete all overlay snapshots in %s?", resetDir)) {
			fmt.Fprintln(out, "🗑️  Clearing Overlay Snapshots...")
			removeDir(resetDir)
		}
	}

	fmt.Fprintln(out, "✨ System Reset Complete.")
	return nil
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
