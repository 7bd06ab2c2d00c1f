package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/capture"
	"github.com/andresmejia3/sentinel-live/internal/client"
	"github.com/andresmejia3/sentinel-live/internal/loop"
	"github.com/andresmejia3/sentinel-live/internal/overlay"
	"github.com/andresmejia3/sentinel-live/internal/render"
	"github.com/andresmejia3/sentinel-live/internal/store"
	"github.com/andresmejia3/sentinel-live/internal/types"
	"github.com/andresmejia3/sentinel-live/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// LiveOptions holds the flags of the live command
type LiveOptions struct {
	InputPath      string
	Effect         string
	RefreshRate    float64
	Display        string
	OverlayOut     string
	RequestTimeout time.Duration
	Duration       time.Duration
	Realtime       bool
}

var liveOpts LiveOptions

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Detect and redact faces on a playing video in real time",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLive(cmd.Context(), liveOpts)
	},
}

func init() {
	liveCmd.Flags().StringVarP(&liveOpts.InputPath, "input", "i", "", "Path or URL of the video to play")
	liveCmd.Flags().StringVarP(&liveOpts.Effect, "effect", "x", string(types.EffectBlur), "Effect applied to detected faces: grayscale, blur")
	liveCmd.Flags().Float64Var(&liveOpts.RefreshRate, "refresh", loop.DefaultRefreshRate, "Display refresh rate the loop is paced to (Hz)")
	liveCmd.Flags().StringVar(&liveOpts.Display, "display", types.CaptureSize.String(), "Display geometry (WxH) the overlay boxes are mapped to")
	liveCmd.Flags().StringVar(&liveOpts.OverlayOut, "overlay-out", "", "Directory to save overlay snapshots to (disabled if empty)")
	liveCmd.Flags().DurationVar(&liveOpts.RequestTimeout, "request-timeout", client.DefaultTimeout, "Timeout for a single detection or effect request")
	liveCmd.Flags().DurationVar(&liveOpts.Duration, "duration", 0, "Stop after this long (0 runs until Ctrl+C or the video ends)")
	liveCmd.Flags().BoolVar(&liveOpts.Realtime, "realtime", true, "Play file inputs at their native frame rate")

	liveCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(liveCmd)
}

// liveSettings are the parsed, validated live flags.
type liveSettings struct {
	Effect  types.EffectKind
	Display types.Size
}

func runLive(ctx context.Context, opts LiveOptions) error {
	settings, err := validateLiveFlags(&opts)
	if err != nil {
		utils.ShowError("Invalid flags", err, nil)
		return err
	}
	logger := Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	src := capture.NewFFmpegSource(ctx, opts.InputPath, opts.Realtime, logger)
	defer src.Close()

	api := client.New(apiURL, opts.RequestTimeout, logger)
	renderer := render.New(nil, logger)
	pacer := loop.NewTickerPacer(nil, opts.RefreshRate)
	defer pacer.Stop()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("🎥 Waiting for first frame..."),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	if opts.OverlayOut != "" {
		if err := os.MkdirAll(opts.OverlayOut, 0755); err != nil {
			utils.ShowError("Failed to create overlay directory", err, nil)
			return err
		}
		snaps := &snapshotWriter{
			dir:     opts.OverlayOut,
			display: settings.Display,
			log:     logger,
		}
		renderer.OnCommit = snaps.Write
	}

	ctrl, err := loop.New(ctx, loop.Config{
		Source:   src,
		Detector: api,
		Effector: api,
		Renderer: renderer,
		Pacer:    pacer,
		Logger:   logger,
		OnIteration: func(s types.Stats) {
			bar.Describe(statsLine(s))
			bar.Add(1)
		},
	})
	if err != nil {
		utils.ShowError("Failed to build live loop", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "🚀 Starting live %s on %s (service: %s)\n", settings.Effect, opts.InputPath, api.BaseURL)
	if err := ctrl.Start(settings.Effect); err != nil {
		utils.ShowError("Failed to start live loop", err, src.Command())
		return err
	}
	runID, _, startedAt := ctrl.Run()

	var deadline <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\n🛑 Interrupted, stopping...")
	case <-deadline:
	case <-src.Ended():
	}

	stats := stopRun(ctrl, renderer)
	bar.Finish()
	stoppedAt := time.Now()

	var runErr error
	if err := src.Err(); err != nil {
		utils.ShowError("Video source failed", err, src.Command())
		runErr = err
	}

	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "📊 LIVE SUMMARY (run %s)\n", shortID(runID))
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "⏱️  Duration:     %s\n", stoppedAt.Sub(startedAt).Round(time.Second))
	fmt.Fprintf(os.Stderr, "🔁 Iterations:   %d (%d skipped)\n", stats.Iterations, stats.Skipped)
	fmt.Fprintf(os.Stderr, "🖼️  Renders:      %d\n", stats.Renders)
	fmt.Fprintf(os.Stderr, "⚠️  Failures:     %d\n", stats.Failures)
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")

	if DB != nil {
		// ctx may already be cancelled by Ctrl+C; the journal write still has to land.
		err := DB.InsertRun(context.Background(), store.Run{
			ID:         runID,
			Effect:     string(settings.Effect),
			Input:      opts.InputPath,
			StartedAt:  startedAt,
			StoppedAt:  stoppedAt,
			Iterations: stats.Iterations,
			Skipped:    stats.Skipped,
			Failures:   stats.Failures,
			Renders:    stats.Renders,
		})
		if err != nil {
			utils.ShowError("Failed to record run", err, nil)
			return errors.Join(runErr, err)
		}
	}

	fmt.Fprintln(os.Stderr, "🏁 Live run complete.")
	return runErr
}

// stopRun ends the run, drains in-flight calls and pending draws, and returns
// the final counters. Stop keeps the counters of the run it ended.
func stopRun(ctrl *loop.Controller, renderer *render.Renderer) types.Stats {
	ctrl.Stop()
	ctrl.Wait()
	renderer.Wait()
	return ctrl.Stats()
}

// validateLiveFlags checks the live arguments before ffmpeg is spawned.
func validateLiveFlags(opts *LiveOptions) (liveSettings, error) {
	var s liveSettings

	if opts.InputPath == "" {
		return s, fmt.Errorf("input is required")
	}
	// Stream URLs go straight to ffmpeg; only local paths can be checked here
	if !strings.Contains(opts.InputPath, "://") {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			if os.IsNotExist(err) {
				return s, fmt.Errorf("input file does not exist: %w", err)
			}
			return s, fmt.Errorf("unable to access input file: %w", err)
		}
		if info.IsDir() {
			return s, fmt.Errorf("input path is a directory, expected a video file")
		}
	}

	kind, err := types.ParseEffectKind(opts.Effect)
	if err != nil {
		return s, err
	}
	s.Effect = kind

	if opts.RefreshRate <= 0 || opts.RefreshRate > 1000 {
		return s, fmt.Errorf("refresh rate must be between 0 and 1000 Hz, got %g", opts.RefreshRate)
	}

	display, err := types.ParseSize(opts.Display)
	if err != nil {
		return s, err
	}
	s.Display = display

	if opts.RequestTimeout <= 0 {
		return s, fmt.Errorf("request timeout must be positive, got %s", opts.RequestTimeout)
	}
	if opts.Duration < 0 {
		return s, fmt.Errorf("duration cannot be negative, got %s", opts.Duration)
	}
	return s, nil
}

// statsLine is the one-line stats display shown next to the spinner.
func statsLine(s types.Stats) string {
	state := "stopped"
	if s.Running {
		state = "running"
	}
	return fmt.Sprintf("🎥 %s | faces: %d | last: %s | renders: %d | failures: %d",
		state, len(s.Detections), s.Elapsed.Round(time.Millisecond), s.Renders, s.Failures)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// snapshotWriter saves every committed overlay with the boxes of the
// iteration that produced it drawn on top.
type snapshotWriter struct {
	dir     string
	display types.Size
	log     *zap.SugaredLogger
	n       atomic.Int64
}

func (w *snapshotWriter) Write(surface *image.RGBA, dets []types.Detection) {
	n := w.n.Add(1)
	img := overlay.DrawBoxes(surface, dets, w.display)
	path := filepath.Join(w.dir, fmt.Sprintf("overlay_%d.jpg", n))
	if err := imaging.Save(img, path, imaging.JPEGQuality(types.JPEGQuality)); err != nil {
		w.log.Warnw("failed to save overlay snapshot", "path", path, "error", err)
	}
}
