package simulation

import "math"

// DefaultMaxDistance caps the distance reported for open space.
const DefaultMaxDistance = 500

// Scene is an immutable union of shapes.
type Scene struct {
	shapes      []Shape
	maxDistance float64
}

// NewScene copies the provided shapes into a read-only scene. A non-positive
// maxDistance falls back to DefaultMaxDistance.
func NewScene(maxDistance float64, shapes ...Shape) *Scene {
	if maxDistance <= 0 || math.IsNaN(maxDistance) {
		maxDistance = DefaultMaxDistance
	}
	copied := make([]Shape, 0, len(shapes))
	for _, shape := range shapes {
		if shape != nil {
			copied = append(copied, shape)
		}
	}
	return &Scene{shapes: copied, maxDistance: maxDistance}
}

// Distance returns the signed distance from point to the union of all shapes.
// An empty scene reports MaxDistance.
func (s *Scene) Distance(point Point) float64 {
	if s == nil {
		return DefaultMaxDistance
	}
	if len(s.shapes) == 0 {
		return s.maxDistance
	}
	//1.- The union boundary is the zero level-set of the pointwise minimum.
	nearest := math.Inf(1)
	for _, shape := range s.shapes {
		if d := shape.Distance(point); d < nearest {
			nearest = d
		}
	}
	return nearest
}

// MaxDistance reports the open-space sentinel.
func (s *Scene) MaxDistance() float64 {
	if s == nil {
		return DefaultMaxDistance
	}
	return s.maxDistance
}

// Len reports how many shapes the scene holds.
func (s *Scene) Len() int {
	if s == nil {
		return 0
	}
	return len(s.shapes)
}

// Shapes returns a copy of the scene's shapes in insertion order.
func (s *Scene) Shapes() []Shape {
	if s == nil {
		return nil
	}
	out := make([]Shape, len(s.shapes))
	copy(out, s.shapes)
	return out
}

// Circles returns the circle shapes in insertion order.
func (s *Scene) Circles() []Circle {
	var circles []Circle
	for _, shape := range s.Shapes() {
		if c, ok := shape.(Circle); ok {
			circles = append(circles, c)
		}
	}
	return circles
}

// Boxes returns the box shapes in insertion order.
func (s *Scene) Boxes() []Box {
	var boxes []Box
	for _, shape := range s.Shapes() {
		if b, ok := shape.(Box); ok {
			boxes = append(boxes, b)
		}
	}
	return boxes
}

var _ SignedDistanceField = (*Scene)(nil)
