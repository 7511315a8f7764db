// Package render paints a scene and its traced ray the way the interactive
// canvas does, for PNG snapshots and headless use.
package render

import (
	"fmt"
	"image"
	"io"

	"github.com/fogleman/gg"

	"spheretrace/visualizer/internal/simulation"
)

// Style holds the colors and sizes used to paint a frame.
type Style struct {
	Background        string
	ShapeColor        string
	SourceRadius      float64
	GuideAlpha        float64
	SphereFillAlpha   float64
	SphereStrokeAlpha float64
	LineWidth         float64
}

// DefaultStyle matches the viewer page.
var DefaultStyle = Style{
	Background:        "#333333",
	ShapeColor:        "#000000",
	SourceRadius:      7,
	GuideAlpha:        0.2,
	SphereFillAlpha:   0.1,
	SphereStrokeAlpha: 0.3,
	LineWidth:         3,
}

// Frame is everything needed to paint one picture.
type Frame struct {
	Viewport simulation.Viewport
	Scene    *simulation.Scene
	Trace    simulation.Trace
}

// Renderer paints frames with a fixed style.
type Renderer struct {
	style Style
}

// New constructs a renderer.
func New(style Style) *Renderer {
	return &Renderer{style: style}
}

// Draw paints the frame: background, shapes, source point, then the guide line,
// the visibility circles and the light ray.
func (r *Renderer) Draw(frame Frame) (image.Image, error) {
	dc, err := r.paint(frame)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// EncodePNG paints the frame and writes it to w as PNG.
func (r *Renderer) EncodePNG(w io.Writer, frame Frame) error {
	dc, err := r.paint(frame)
	if err != nil {
		return err
	}
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}

func (r *Renderer) paint(frame Frame) (*gg.Context, error) {
	if frame.Viewport.Width <= 0 || frame.Viewport.Height <= 0 {
		return nil, fmt.Errorf("render: viewport must be positive, got %dx%d", frame.Viewport.Width, frame.Viewport.Height)
	}
	dc := gg.NewContext(frame.Viewport.Width, frame.Viewport.Height)
	s := r.style

	dc.SetHexColor(s.Background)
	dc.Clear()

	dc.SetHexColor(s.ShapeColor)
	for _, c := range frame.Scene.Circles() {
		dc.DrawCircle(c.Center.X, c.Center.Y, c.Radius)
		dc.Fill()
	}
	for _, b := range frame.Scene.Boxes() {
		corner := b.Min()
		dc.DrawRectangle(corner.X, corner.Y, 2*b.HalfExtent.X, 2*b.HalfExtent.Y)
		dc.Fill()
	}

	trace := frame.Trace
	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(trace.Source.X, trace.Source.Y, s.SourceRadius)
	dc.Fill()

	dc.SetLineWidth(s.LineWidth)
	dc.SetRGBA(1, 1, 1, s.GuideAlpha)
	dc.DrawLine(trace.Source.X, trace.Source.Y, trace.Target.X, trace.Target.Y)
	dc.Stroke()

	for _, sample := range trace.Samples {
		dc.SetRGBA(1, 1, 1, s.SphereFillAlpha)
		dc.DrawCircle(sample.Position.X, sample.Position.Y, sample.Radius)
		dc.Fill()
		dc.SetRGBA(1, 1, 1, s.SphereStrokeAlpha)
		dc.DrawCircle(sample.Position.X, sample.Position.Y, sample.Radius)
		dc.Stroke()
	}

	dc.SetRGB(1, 1, 1)
	dc.DrawLine(trace.Source.X, trace.Source.Y, trace.End.X, trace.End.Y)
	dc.Stroke()

	return dc, nil
}
