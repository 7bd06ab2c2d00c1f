// Package overlay maps detection boxes from capture space to display space
// and draws them for the overlay UI.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/andresmejia3/sentinel-live/internal/types"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// Map scales a detection box from captureSize to displaySize. X and Y scale
// independently, so a display with a different aspect ratio gets a stretched box.
// The result depends only on its arguments; recompute it on every resize.
func Map(d types.Detection, captureSize, displaySize types.Size) types.Box {
	if captureSize.Width <= 0 || captureSize.Height <= 0 {
		return types.Box{}
	}
	sx := displaySize.Width / captureSize.Width
	sy := displaySize.Height / captureSize.Height
	return types.Box{
		X:      d.X * sx,
		Y:      d.Y * sy,
		Width:  d.Width * sx,
		Height: d.Height * sy,
	}
}

// MapAll maps every detection, keeping order.
func MapAll(dets []types.Detection, captureSize, displaySize types.Size) []types.Box {
	boxes := make([]types.Box, len(dets))
	for i, d := range dets {
		boxes[i] = Map(d, captureSize, displaySize)
	}
	return boxes
}

// BoxColor is the stroke used for detection outlines.
var BoxColor = color.RGBA{0, 255, 0, 255}

// DrawBoxes renders base (if any) at displaySize and outlines every detection
// on top of it, each labelled with its label or id and confidence.
func DrawBoxes(base image.Image, dets []types.Detection, displaySize types.Size) image.Image {
	w, h := int(displaySize.Width), int(displaySize.Height)
	dc := gg.NewContext(w, h)
	if base != nil && !base.Bounds().Empty() {
		dc.DrawImage(imaging.Resize(base, w, h, imaging.Linear), 0, 0)
	}

	dc.SetColor(BoxColor)
	dc.SetLineWidth(2)
	for _, d := range dets {
		b := Map(d, types.CaptureSize, displaySize)
		dc.DrawRectangle(b.X, b.Y, b.Width, b.Height)
		dc.Stroke()

		name := d.Label
		if name == "" {
			name = d.ID
		}
		dc.DrawString(fmt.Sprintf("%s %.0f%%", name, d.Confidence*100), b.X+2, b.Y-4)
	}
	return dc.Image()
}
