package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// StillSource presents a single image as a video that is always on the same frame.
// It backs the one-shot commands and the loop tests.
type StillSource struct {
	mu      sync.Mutex
	img     image.Image
	playing bool
}

// NewStillSource wraps an already decoded image. It starts paused.
func NewStillSource(img image.Image) *StillSource {
	return &StillSource{img: img}
}

// OpenStill decodes an image file, honouring its EXIF orientation.
func OpenStill(path string) (*StillSource, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return NewStillSource(img), nil
}

func (s *StillSource) CurrentFrame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img, s.img != nil
}

func (s *StillSource) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *StillSource) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return fmt.Errorf("no image loaded")
	}
	s.playing = true
	return nil
}

// Pause stops playback without dropping the current frame.
func (s *StillSource) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

// SetFrame swaps the displayed image. A nil image means "no valid frame".
func (s *StillSource) SetFrame(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}
