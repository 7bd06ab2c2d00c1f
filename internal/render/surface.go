package render

import (
	"image"
	"sync"

	"github.com/andresmejia3/sentinel-live/internal/types"
)

// Surface is the persistent overlay the processed frames are drawn onto.
// It is always CaptureWidth x CaptureHeight and starts fully transparent.
type Surface struct {
	mu      sync.Mutex
	img     *image.RGBA
	empty   bool
	commits int
	clears  int
	drawn   uint64 // sequence number of the newest committed draw
}

func NewSurface() *Surface {
	return &Surface{
		img:   image.NewRGBA(image.Rect(0, 0, types.CaptureWidth, types.CaptureHeight)),
		empty: true,
	}
}

// Snapshot returns a copy of the current contents.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := image.NewRGBA(s.img.Rect)
	copy(cp.Pix, s.img.Pix)
	return cp
}

// Empty reports whether nothing has been drawn since creation or the last clear.
func (s *Surface) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.empty
}

// Commits counts draws that actually landed on the surface.
func (s *Surface) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Clears counts calls to Clear.
func (s *Surface) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func (s *Surface) wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.img.Pix)
	s.empty = true
	s.clears++
}

// commit runs paint under the surface lock, but only if current still holds
// and no newer draw (higher seq) has landed already. Holding the lock across
// the checks and the write keeps a late draw from landing after a stop has
// cleared the surface or on top of a newer frame. With snapshot set, the
// returned copy is taken under the same lock.
func (s *Surface) commit(seq uint64, current func() bool, paint func(dst *image.RGBA), snapshot bool) (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.drawn {
		return nil, false
	}
	if current != nil && !current() {
		return nil, false
	}
	paint(s.img)
	s.drawn = seq
	s.empty = false
	s.commits++

	if !snapshot {
		return nil, true
	}
	cp := image.NewRGBA(s.img.Rect)
	copy(cp.Pix, s.img.Pix)
	return cp, true
}
