package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/capture"
	"github.com/andresmejia3/sentinel-live/internal/client"
	"github.com/andresmejia3/sentinel-live/internal/overlay"
	"github.com/andresmejia3/sentinel-live/internal/types"
	"github.com/andresmejia3/sentinel-live/internal/utils"
	"github.com/spf13/cobra"
)

var (
	detectDisplay string
	detectTimeout time.Duration
)

var detectCmd = &cobra.Command{
	Use:   "detect <image_path>",
	Short: "Run face detection once on a still image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runDetect(cmd.Context(), args[0])
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectDisplay, "display", "", "Also print boxes mapped to this display geometry (WxH)")
	detectCmd.Flags().DurationVar(&detectTimeout, "timeout", client.DefaultTimeout, "Request timeout")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(ctx context.Context, imagePath string) error {
	var display types.Size
	if detectDisplay != "" {
		var err error
		if display, err = types.ParseSize(detectDisplay); err != nil {
			utils.ShowError("Invalid display geometry", err, nil)
			return err
		}
	}

	frame, err := captureStill(imagePath)
	if err != nil {
		utils.ShowError("Failed to capture image", err, nil)
		return err
	}

	api := client.New(apiURL, detectTimeout, Logger)
	fmt.Fprintln(os.Stderr, "🔍 Detecting faces...")
	dets, err := api.Detect(ctx, frame)
	if err != nil {
		utils.ShowError("Detection request failed", err, nil)
		return err
	}

	if len(dets) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}
	printDetections(os.Stdout, dets, display)
	return nil
}

// captureStill loads an image file and captures it exactly like a live frame.
func captureStill(path string) (*types.Frame, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected an image", path)
	}

	src, err := capture.OpenStill(path)
	if err != nil {
		return nil, err
	}
	if err := src.Play(); err != nil {
		return nil, err
	}
	frame, ok := capture.CaptureFrame(src)
	if !ok {
		return nil, fmt.Errorf("failed to encode %s", path)
	}
	return frame, nil
}

// printDetections writes one row per detection. A zero display skips the mapped column.
func printDetections(out io.Writer, dets []types.Detection, display types.Size) {
	showMapped := display.Width > 0 && display.Height > 0

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	header, rule := "ID\tX\tY\tW\tH\tCONF\tLABEL", "--\t-\t-\t-\t-\t----\t-----"
	if showMapped {
		header += "\tDISPLAY " + display.String()
		rule += "\t-------"
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, rule)

	for _, d := range dets {
		fmt.Fprintf(w, "%s\t%.0f\t%.0f\t%.0f\t%.0f\t%.2f\t%s", d.ID, d.X, d.Y, d.Width, d.Height, d.Confidence, d.Label)
		if showMapped {
			b := overlay.Map(d, types.CaptureSize, display)
			fmt.Fprintf(w, "\t%.0f,%.0f %.0fx%.0f", b.X, b.Y, b.Width, b.Height)
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}
