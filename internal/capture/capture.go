// Package capture snapshots a video source into fixed-resolution JPEG frames.
package capture

import (
	"bytes"
	"image"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/types"
	"github.com/disintegration/imaging"
)

// Source is the video playback widget as the processing loop sees it.
type Source interface {
	// CurrentFrame returns the image currently on display. ok is false when the
	// source has nothing valid to show (not ready, paused at start, ended).
	CurrentFrame() (img image.Image, ok bool)
	// Playing reports whether the source is actively playing.
	Playing() bool
	// Play starts or resumes playback.
	Play() error
}

// CaptureFrame renders the source's current image into capture space and
// encodes it as JPEG. A false return means "skip this iteration", not an error.
func CaptureFrame(src Source) (*types.Frame, bool) {
	img, ok := src.CurrentFrame()
	if !ok || img == nil || img.Bounds().Empty() {
		return nil, false
	}
	return EncodeFrame(img)
}

// EncodeFrame stretches img to exactly CaptureWidth x CaptureHeight, ignoring
// its aspect ratio, and encodes it at JPEGQuality.
func EncodeFrame(img image.Image) (*types.Frame, bool) {
	if img == nil || img.Bounds().Empty() {
		return nil, false
	}
	resized := imaging.Resize(img, types.CaptureWidth, types.CaptureHeight, imaging.Linear)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(types.JPEGQuality)); err != nil {
		return nil, false
	}

	return &types.Frame{
		Data:       buf.Bytes(),
		Width:      resized.Bounds().Dx(),
		Height:     resized.Bounds().Dy(),
		CapturedAt: time.Now(),
	}, true
}
