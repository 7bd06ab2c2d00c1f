package types

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Capture space. Every frame sent to the detection service and every box it
// returns lives in this fixed resolution, regardless of source or display size.
const (
	CaptureWidth  = 800
	CaptureHeight = 450

	// JPEGQuality is the compression quality used when encoding captured frames.
	JPEGQuality = 80
)

// CaptureSize is the capture space as a Size.
var CaptureSize = Size{Width: CaptureWidth, Height: CaptureHeight}

// Detection is one region of interest returned by the detection service for a
// single frame. Coordinates are pixels in capture space.
type Detection struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
}

// Frame is a captured, encoded raster at capture resolution.
// It is scoped to one iteration and never retained.
type Frame struct {
	Data       []byte // JPEG bytes
	Width      int
	Height     int
	CapturedAt time.Time
}

// DataURI returns the frame as a JPEG data URI, the format the remote services expect.
func (f *Frame) DataURI() string {
	return EncodeDataURI("image/jpeg", f.Data)
}

// EffectKind selects the server-side effect applied to a frame.
type EffectKind string

const (
	EffectGrayscale EffectKind = "grayscale"
	EffectBlur      EffectKind = "blur"
)

// EffectKinds lists every supported effect, in flag help order.
var EffectKinds = []EffectKind{EffectGrayscale, EffectBlur}

// ParseEffectKind validates a user supplied effect name.
func ParseEffectKind(s string) (EffectKind, error) {
	k := EffectKind(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k, nil
	}
	return "", fmt.Errorf("invalid effect '%s'. Must be 'grayscale' or 'blur'", s)
}

// Valid reports whether k is one of the known effects.
func (k EffectKind) Valid() bool {
	return k == EffectGrayscale || k == EffectBlur
}

// Endpoint is the remote path serving this effect.
func (k EffectKind) Endpoint() string {
	switch k {
	case EffectGrayscale:
		return "/grayscale-faces"
	case EffectBlur:
		return "/blur-faces"
	}
	return ""
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64
	Height float64
}

// ParseSize reads a "WxH" geometry string such as "1280x720".
func ParseSize(s string) (Size, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("invalid size '%s' (use WxH, e.g. 1280x720)", s)
	}
	w, err := strconv.ParseFloat(ws, 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid width in '%s': %w", s, err)
	}
	h, err := strconv.ParseFloat(hs, 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid height in '%s': %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("invalid size '%s': width and height must be positive", s)
	}
	return Size{Width: w, Height: h}, nil
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Box is an axis-aligned rectangle in display space.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Stats is the read-only view handed to the stats display after every iteration.
type Stats struct {
	Detections []Detection
	Elapsed    time.Duration // wall-clock time of the last full iteration
	Running    bool
	Iterations int
	Skipped    int
	Failures   int
	Renders    int // draws that actually landed on the overlay
}

// EncodeDataURI wraps raw bytes as a base64 data URI.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI accepts a full data URI or a bare base64 payload.
func DecodeDataURI(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty image payload")
	}
	return base64.StdEncoding.DecodeString(s)
}

// ProcessedImage is the encoded image returned by the effect service, as a data URI.
type ProcessedImage string

// ErrorResult captures the error object returned by the remote service on failure
type ErrorResult struct {
	Error string `json:"error"`
}
