package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/sentinel-live/internal/types"
)

type effectRequest struct {
	Image      string            `json:"image"`
	Detections []types.Detection `json:"detections"`
}

type effectResponse struct {
	Image string `json:"image"`
}

// ApplyEffect asks the service to apply kind to the regions in dets. Callers
// must not invoke it with an empty list. An empty ProcessedImage means the
// service answered with something unusable; there is nothing to render.
func (c *Client) ApplyEffect(ctx context.Context, frame *types.Frame, dets []types.Detection, kind types.EffectKind) (types.ProcessedImage, error) {
	path := kind.Endpoint()
	if path == "" {
		return "", fmt.Errorf("unknown effect %q", kind)
	}

	var resp effectResponse
	err := c.post(ctx, path, effectRequest{Image: frame.DataURI(), Detections: dets}, &resp)
	if errors.Is(err, errMalformed) {
		c.log.Warnw("treating malformed effect response as empty", "effect", kind, "error", err)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if resp.Image == "" {
		c.log.Warnw("effect response carried no image", "effect", kind)
	}
	return types.ProcessedImage(resp.Image), nil
}
