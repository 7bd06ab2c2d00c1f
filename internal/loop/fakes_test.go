package loop

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/types"
)

// manualPacer hands out ticks one at a time. Tick blocks until the loop is
// waiting for it, so a returned Tick means the previous iteration is over.
type manualPacer struct {
	ticks chan struct{}
}

func newManualPacer() *manualPacer {
	return &manualPacer{ticks: make(chan struct{})}
}

func (p *manualPacer) Wait(ctx context.Context) error {
	select {
	case <-p.ticks:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *manualPacer) Tick(t *testing.T) {
	t.Helper()
	select {
	case p.ticks <- struct{}{}:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never asked for the next tick")
	}
}

// gauge tracks concurrent remote calls.
type gauge struct {
	inFlight atomic.Int32
	max      atomic.Int32
}

func (g *gauge) enter() {
	n := g.inFlight.Add(1)
	for {
		m := g.max.Load()
		if n <= m || g.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (g *gauge) leave() { g.inFlight.Add(-1) }

type fakeDetector struct {
	g *gauge

	mu      sync.Mutex
	results [][]types.Detection // consumed in order; the last one repeats
	errs    []error
	calls   int

	// entered is signalled at the start of every call; gate, if set, is
	// waited on before answering.
	entered chan struct{}
	gate    chan struct{}
	onCall  func()
}

func (f *fakeDetector) Detect(ctx context.Context, frame *types.Frame) ([]types.Detection, error) {
	if f.g != nil {
		f.g.enter()
		defer f.g.leave()
	}
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.onCall != nil {
		f.onCall()
	}

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if len(f.results) == 0 {
		return []types.Detection{}, nil
	}
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], nil
}

func (f *fakeDetector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type effectCall struct {
	Detections []types.Detection
	Kind       types.EffectKind
}

type fakeEffector struct {
	g     *gauge
	img   types.ProcessedImage
	err   error
	gate  chan struct{}
	enter chan struct{}

	mu    sync.Mutex
	calls []effectCall
}

func (f *fakeEffector) ApplyEffect(ctx context.Context, frame *types.Frame, dets []types.Detection, kind types.EffectKind) (types.ProcessedImage, error) {
	if f.g != nil {
		f.g.enter()
		defer f.g.leave()
	}
	f.mu.Lock()
	f.calls = append(f.calls, effectCall{Detections: dets, Kind: kind})
	f.mu.Unlock()

	if f.enter != nil {
		f.enter <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.img, f.err
}

func (f *fakeEffector) Calls() []effectCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]effectCall(nil), f.calls...)
}

func solidPNG(t *testing.T, c color.Color) types.ProcessedImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return types.ProcessedImage(types.EncodeDataURI("image/png", buf.Bytes()))
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1280, 720))
}
