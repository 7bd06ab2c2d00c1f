// Package render draws processed frames onto the persistent overlay surface.
package render

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/sentinel-live/internal/types"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Renderer owns the overlay surface. Decoding happens off the caller's
// goroutine; the caller does not wait for it.
type Renderer struct {
	surface *Surface
	log     *zap.SugaredLogger

	// OnCommit, if set, receives a copy of the surface after every committed
	// draw, along with the detections that draw was made for.
	OnCommit func(snapshot *image.RGBA, dets []types.Detection)

	seq atomic.Uint64
	wg  sync.WaitGroup
}

func New(surface *Surface, logger *zap.SugaredLogger) *Renderer {
	if surface == nil {
		surface = NewSurface()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Renderer{surface: surface, log: logger}
}

func (r *Renderer) Surface() *Surface {
	return r.surface
}

// DrawProcessed decodes img in the background and draws it, scaled to capture
// resolution, over the previous contents. Draws are ordered by call: one that
// finishes decoding after a later call has committed is dropped. current is
// checked under the surface lock right before the write; if it reports false
// nothing is committed, and if it reports true the draw lands.
func (r *Renderer) DrawProcessed(img types.ProcessedImage, dets []types.Detection, current func() bool) {
	seq := r.seq.Add(1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		decoded, err := decode(img)
		if err != nil {
			r.log.Warnw("failed to decode processed image", "error", err)
			return
		}

		snap, committed := r.surface.commit(seq, current, func(dst *image.RGBA) {
			draw.ApproxBiLinear.Scale(dst, dst.Bounds(), decoded, decoded.Bounds(), draw.Src, nil)
		}, r.OnCommit != nil)
		if !committed {
			r.log.Debugw("discarding stale draw", "seq", seq)
			return
		}
		if r.OnCommit != nil {
			r.OnCommit(snap, dets)
		}
	}()
}

// Clear empties the surface.
func (r *Renderer) Clear() {
	r.surface.wipe()
}

// Wait blocks until every pending decode has either committed or been discarded.
func (r *Renderer) Wait() {
	r.wg.Wait()
}

func decode(img types.ProcessedImage) (image.Image, error) {
	raw, err := types.DecodeDataURI(string(img))
	if err != nil {
		return nil, err
	}
	decoded, _, err := image.Decode(bytes.NewReader(raw))
	return decoded, err
}
