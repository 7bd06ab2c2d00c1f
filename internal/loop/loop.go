// Package loop drives the capture -> detect -> effect -> render cycle.
//
// Each Start opens a run identified by a session token. Every iteration
// carries the token it was scheduled under and compares it with the current
// one before committing anything, so Stop never has to interrupt an
// in-flight request: it only bumps the token and whatever finishes late is
// dropped. Iterations of a run are strictly sequential and the next one is
// only scheduled after the previous one has handed its image to the
// renderer, which bounds in-flight remote calls to one.
package loop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/capture"
	"github.com/andresmejia3/sentinel-live/internal/types"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Detector finds regions of interest in a frame.
type Detector interface {
	Detect(ctx context.Context, frame *types.Frame) ([]types.Detection, error)
}

// Effector applies an effect to the regions of a frame.
type Effector interface {
	ApplyEffect(ctx context.Context, frame *types.Frame, dets []types.Detection, kind types.EffectKind) (types.ProcessedImage, error)
}

// Drawer owns the overlay surface.
type Drawer interface {
	// DrawProcessed must call current right before committing and drop the
	// draw if it returns false. A true return means the draw lands.
	DrawProcessed(img types.ProcessedImage, dets []types.Detection, current func() bool)
	Clear()
}

// Config wires a Controller to its collaborators.
type Config struct {
	Source   capture.Source
	Detector Detector
	Effector Effector
	Renderer Drawer
	Pacer    Pacer

	Clock  clock.Clock
	Logger *zap.SugaredLogger

	// OnIteration receives a snapshot after every iteration of the current run,
	// including skipped and failed ones. It is called from the loop goroutine.
	OnIteration func(types.Stats)
}

// Controller owns the run state. It is safe for concurrent use.
type Controller struct {
	cfg   Config
	ctx   context.Context
	clock clock.Clock
	log   *zap.SugaredLogger

	// lifecycle serializes Start and Stop end to end, including the clear.
	lifecycle sync.Mutex

	mu         sync.Mutex
	token      uint64
	running    bool
	effect     types.EffectKind
	runID      string
	startedAt  time.Time
	detections []types.Detection
	stats      types.Stats
	lastRun    chan struct{} // closed when the latest run goroutine exits
}

// New validates cfg. ctx bounds every remote call and every run; cancel it to
// shut the controller down for good.
func New(ctx context.Context, cfg Config) (*Controller, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("loop: source is required")
	case cfg.Detector == nil:
		return nil, errors.New("loop: detector is required")
	case cfg.Effector == nil:
		return nil, errors.New("loop: effector is required")
	case cfg.Renderer == nil:
		return nil, errors.New("loop: renderer is required")
	case cfg.Pacer == nil:
		return nil, errors.New("loop: pacer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Controller{cfg: cfg, ctx: ctx, clock: cfg.Clock, log: cfg.Logger}, nil
}

// Start opens a run with the given effect. It is a no-op while already running.
func (c *Controller) Start(kind types.EffectKind) error {
	if !kind.Valid() {
		return fmt.Errorf("loop: invalid effect %q", kind)
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	if !c.cfg.Source.Playing() {
		if err := c.cfg.Source.Play(); err != nil {
			return fmt.Errorf("failed to start video source: %w", err)
		}
	}

	c.token++
	c.running = true
	c.effect = kind
	c.runID = uuid.NewString()
	c.startedAt = c.clock.Now()
	c.detections = nil
	c.stats = types.Stats{}

	prev := c.lastRun
	done := make(chan struct{})
	c.lastRun = done
	go c.run(c.token, prev, done)

	c.log.Infow("run started", "run", c.runID, "effect", kind)
	return nil
}

// Stop ends the current run, drops the detection list and clears the overlay.
// In-flight remote calls are left to finish; their results are discarded.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.token++
	c.detections = nil
	runID, stats := c.runID, c.stats
	c.mu.Unlock()

	c.cfg.Renderer.Clear()
	c.log.Infow("run stopped", "run", runID, "iterations", stats.Iterations, "failures", stats.Failures)
}

// Wait blocks until the goroutine of the latest run has exited. Call it after
// Stop (or after cancelling the controller context) to drain in-flight calls.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.lastRun
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) run(token uint64, prev <-chan struct{}, done chan struct{}) {
	defer close(done)

	// A previous run may still be waiting on the service; never overlap with it.
	if prev != nil {
		select {
		case <-prev:
		case <-c.ctx.Done():
			return
		}
	}

	for {
		if err := c.cfg.Pacer.Wait(c.ctx); err != nil {
			return
		}
		if !c.current(token) {
			return
		}
		c.runIteration(token)
	}
}

// runIteration performs one capture -> detect -> effect -> render pass.
func (c *Controller) runIteration(token uint64) {
	start := c.clock.Now()

	src := c.cfg.Source
	if !src.Playing() {
		c.skip(token, "source not playing")
		return
	}
	frame, ok := capture.CaptureFrame(src)
	if !ok {
		c.skip(token, "no frame available")
		return
	}

	dets, err := c.cfg.Detector.Detect(c.ctx, frame)
	if err != nil {
		c.fail(token, "detect", err)
		return
	}

	kind, ok := c.commitDetections(token, dets)
	if !ok {
		return
	}

	if len(dets) > 0 {
		img, err := c.cfg.Effector.ApplyEffect(c.ctx, frame, dets, kind)
		if err != nil {
			c.fail(token, "effect", err)
			return
		}
		if img != "" {
			c.cfg.Renderer.DrawProcessed(img, dets, func() bool { return c.commitRender(token) })
		}
	}

	c.finish(token, c.clock.Since(start))
}

func (c *Controller) current(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.token == token
}

// commitDetections replaces the detection list if token is still current and
// returns the effect selected for the run.
func (c *Controller) commitDetections(token uint64, dets []types.Detection) (types.EffectKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.token != token {
		return "", false
	}
	c.detections = dets
	return c.effect, true
}

// commitRender is the renderer's commit guard. It counts the render since a
// true return means the draw lands.
func (c *Controller) commitRender(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.token != token {
		return false
	}
	c.stats.Renders++
	return true
}

func (c *Controller) skip(token uint64, reason string) {
	c.log.Debugw("skipping iteration", "reason", reason)
	c.update(token, func(s *types.Stats) { s.Skipped++ })
}

func (c *Controller) fail(token uint64, stage string, err error) {
	if c.ctx.Err() == nil {
		c.log.Warnw("iteration failed", "stage", stage, "error", err)
	}
	c.update(token, func(s *types.Stats) {
		s.Iterations++
		s.Failures++
	})
}

func (c *Controller) finish(token uint64, elapsed time.Duration) {
	c.update(token, func(s *types.Stats) {
		s.Iterations++
		s.Elapsed = elapsed
	})
}

// update applies fn to the run counters and notifies the observer, but only
// for the run that token belongs to.
func (c *Controller) update(token uint64, fn func(*types.Stats)) {
	c.mu.Lock()
	if !c.running || c.token != token {
		c.mu.Unlock()
		return
	}
	fn(&c.stats)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.cfg.OnIteration != nil {
		c.cfg.OnIteration(snap)
	}
}

func (c *Controller) snapshotLocked() types.Stats {
	s := c.stats
	s.Detections = slices.Clone(c.detections)
	s.Running = c.running
	return s
}

// Stats returns a snapshot for the stats display.
func (c *Controller) Stats() types.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Detections returns a copy of the latest committed detection list.
func (c *Controller) Detections() []types.Detection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.detections)
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) Effect() types.EffectKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effect
}

// Run describes the latest run, for the journal.
func (c *Controller) Run() (id string, kind types.EffectKind, startedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID, c.effect, c.startedAt
}
