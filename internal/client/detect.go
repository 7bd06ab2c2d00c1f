package client

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/andresmejia3/sentinel-live/internal/types"
	"github.com/google/uuid"
)

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Detections []json.RawMessage `json:"detections"`
}

// wireDetection mirrors one entry of the service answer. Pointers tell a
// missing field apart from a zero one.
type wireDetection struct {
	ID         json.RawMessage `json:"id"`
	X          *float64        `json:"x"`
	Y          *float64        `json:"y"`
	Width      *float64        `json:"width"`
	Height     *float64        `json:"height"`
	Confidence *float64        `json:"confidence"`
	Label      *string         `json:"label"`
}

// Detect sends one frame to the detection service. The returned list is in
// service order and may be empty. Only transport or service failures are errors.
func (c *Client) Detect(ctx context.Context, frame *types.Frame) ([]types.Detection, error) {
	var resp detectResponse
	err := c.post(ctx, DetectPath, detectRequest{Image: frame.DataURI()}, &resp)
	if errors.Is(err, errMalformed) {
		c.log.Warnw("treating malformed detection response as empty", "error", err)
		return []types.Detection{}, nil
	}
	if err != nil {
		return nil, err
	}

	dets := make([]types.Detection, 0, len(resp.Detections))
	dropped := 0
	for _, raw := range resp.Detections {
		d, ok := parseDetection(raw)
		if !ok {
			dropped++
			continue
		}
		dets = append(dets, d)
	}
	if dropped > 0 {
		c.log.Warnw("dropped invalid detections", "dropped", dropped, "kept", len(dets))
	}
	return dets, nil
}

func parseDetection(raw json.RawMessage) (types.Detection, bool) {
	var w wireDetection
	if err := json.Unmarshal(raw, &w); err != nil {
		return types.Detection{}, false
	}
	if w.X == nil || w.Y == nil || w.Width == nil || w.Height == nil || w.Confidence == nil {
		return types.Detection{}, false
	}

	d := types.Detection{
		ID:         idString(w.ID),
		X:          *w.X,
		Y:          *w.Y,
		Width:      *w.Width,
		Height:     *w.Height,
		Confidence: *w.Confidence,
	}
	if w.Label != nil {
		d.Label = *w.Label
	}
	if d.ID == "" {
		d.ID = uuid.NewString()[:8]
	}
	return Sanitize(d, types.CaptureSize)
}

// idString accepts either a JSON string or number as an identifier.
func idString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// Sanitize clamps a detection box into [0,bounds.Width] x [0,bounds.Height]
// and its confidence into [0,1]. Boxes left with no area are rejected.
func Sanitize(d types.Detection, bounds types.Size) (types.Detection, bool) {
	if !finite(d.X, d.Y, d.Width, d.Height, d.Confidence) {
		return types.Detection{}, false
	}
	x1 := clamp(d.X, 0, bounds.Width)
	y1 := clamp(d.Y, 0, bounds.Height)
	x2 := clamp(d.X+d.Width, 0, bounds.Width)
	y2 := clamp(d.Y+d.Height, 0, bounds.Height)
	if x2 <= x1 || y2 <= y1 {
		return types.Detection{}, false
	}
	d.X, d.Y = x1, y1
	d.Width, d.Height = x2-x1, y2-y1
	d.Confidence = clamp(d.Confidence, 0, 1)
	return d, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

