// Package ggoverlay renders debug overlays onto sampled frames using the
// gg library: outlines of the calibrated bar regions plus the per-frame
// health readings as text.
package ggoverlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
)

var (
	p1Color = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	p2Color = color.RGBA{R: 0, G: 100, B: 255, A: 255}
	txColor = color.White
)

// Renderer implements ports.OverlayRenderer.
type Renderer struct {
	// Scale shrinks the saved overlay relative to the source frame.
	// 1.0 keeps the full resolution.
	scale float64
}

// New creates a renderer. scale in (0,1] controls the output size; values
// outside that range fall back to full resolution.
func New(scale float64) *Renderer {
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	return &Renderer{scale: scale}
}

// RenderOverlay draws the region outlines and readings onto a copy of the
// frame. The frame itself is never modified.
func (r *Renderer) RenderOverlay(frame *pipeline.Frame, layout pipeline.HudLayout, fd pipeline.FrameData) (image.Image, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("overlay: empty frame %d", frame.Index)
	}

	dc := gg.NewContextForImage(toRGBA(frame))

	drawRegion(dc, layout.P1, p1Color)
	drawRegion(dc, layout.P2, p2Color)

	dc.SetColor(txColor)
	dc.DrawString(fmt.Sprintf("F:%d", fd.Index), 10, 24)
	dc.DrawString(readingText("P1", fd.P1), 10, 44)
	dc.DrawString(readingText("P2", fd.P2), 10, 64)

	img := dc.Image()
	if r.scale < 1 {
		img = downscale(img, r.scale)
	}
	return img, nil
}

func readingText(label string, st pipeline.PlayerState) string {
	if !st.Valid {
		return fmt.Sprintf("%s HP:?", label)
	}
	return fmt.Sprintf("%s HP:%.0f%%", label, st.HealthRatio*100)
}

func drawRegion(dc *gg.Context, rect pipeline.PixelRect, c color.Color) {
	dc.SetColor(c)
	dc.SetLineWidth(2)
	dc.DrawRectangle(float64(rect.X), float64(rect.Y), float64(rect.W), float64(rect.H))
	dc.Stroke()
}

// toRGBA converts the packed RGB24 frame buffer into an image.RGBA.
func toRGBA(frame *pipeline.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		src := y * frame.Width * 3
		dst := img.PixOffset(0, y)
		for x := 0; x < frame.Width; x++ {
			img.Pix[dst] = frame.Pixels[src]
			img.Pix[dst+1] = frame.Pixels[src+1]
			img.Pix[dst+2] = frame.Pixels[src+2]
			img.Pix[dst+3] = 0xff
			src += 3
			dst += 4
		}
	}
	return img
}

func downscale(img image.Image, scale float64) image.Image {
	b := img.Bounds()
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 || h < 1 {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, xdraw.Over, nil)
	return out
}

// Ensure Renderer implements ports.OverlayRenderer
var _ ports.OverlayRenderer = (*Renderer)(nil)
