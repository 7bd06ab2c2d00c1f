package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/client"
	"github.com/andresmejia3/sentinel-live/internal/render"
	"github.com/andresmejia3/sentinel-live/internal/types"
	"github.com/andresmejia3/sentinel-live/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

var (
	effectName    string
	effectOutput  string
	effectTimeout time.Duration
)

var effectCmd = &cobra.Command{
	Use:   "effect <image_path>",
	Short: "Apply a face effect once to a still image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEffect(cmd.Context(), args[0], effectOutput)
	},
}

func init() {
	effectCmd.Flags().StringVarP(&effectName, "effect", "x", string(types.EffectBlur), "Effect: grayscale, blur")
	effectCmd.Flags().StringVarP(&effectOutput, "output", "o", "effected.jpg", "Path to output image")
	effectCmd.Flags().DurationVar(&effectTimeout, "timeout", client.DefaultTimeout, "Request timeout")
	rootCmd.AddCommand(effectCmd)
}

func runEffect(ctx context.Context, inputPath, outputPath string) error {
	kind, err := types.ParseEffectKind(effectName)
	if err != nil {
		utils.ShowError("Invalid effect", err, nil)
		return err
	}

	inAbs, _ := filepath.Abs(inputPath)
	outAbs, _ := filepath.Abs(outputPath)
	if inAbs == outAbs {
		err := fmt.Errorf("input and output paths must be different to prevent file corruption")
		utils.ShowError("Invalid output", err, nil)
		return err
	}

	frame, err := captureStill(inputPath)
	if err != nil {
		utils.ShowError("Failed to capture image", err, nil)
		return err
	}

	api := client.New(apiURL, effectTimeout, Logger)
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

	fmt.Fprintf(os.Stderr, "🎨 Applying %s to %d face(s)...\n", kind, len(dets))
	img, err := api.ApplyEffect(ctx, frame, dets, kind)
	if err != nil {
		utils.ShowError("Effect request failed", err, nil)
		return err
	}
	if img == "" {
		err := fmt.Errorf("effect service returned no image")
		utils.ShowError("Effect request failed", err, nil)
		return err
	}

	renderer := render.New(nil, Logger)
	renderer.DrawProcessed(img, dets, nil)
	renderer.Wait()
	if renderer.Surface().Empty() {
		err := fmt.Errorf("processed image could not be decoded")
		utils.ShowError("Render failed", err, nil)
		return err
	}

	if err := imaging.Save(renderer.Surface().Snapshot(), outputPath, imaging.JPEGQuality(types.JPEGQuality)); err != nil {
		utils.ShowError("Failed to write output image", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "✅ Saved %s\n", outputPath)
	return nil
}
