package simulation

import "math"

// Point is an immutable 2D coordinate used for both positions and directions.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for constructing a Point.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Add returns the component wise sum of two points.
func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference between two points.
func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale multiplies both components by a scalar.
func (p Point) Scale(scalar float64) Point {
	//1.- Scaling lets the tracer travel along a direction by the sampled distance.
	return Point{X: p.X * scalar, Y: p.Y * scalar}
}

// Dot returns the scalar dot product of two points treated as vectors.
func (p Point) Dot(other Point) float64 {
	return p.X*other.X + p.Y*other.Y
}

// Length computes the Euclidean norm.
func (p Point) Length() float64 {
	return math.Sqrt(p.Dot(p))
}

// Normalize produces a unit length vector. The zero vector normalizes to itself.
func (p Point) Normalize() Point {
	length := p.Length()
	if length == 0 {
		return Point{}
	}
	inv := 1.0 / length
	return Point{X: p.X * inv, Y: p.Y * inv}
}

// Abs returns the point with both components made non-negative.
func (p Point) Abs() Point {
	return Point{X: math.Abs(p.X), Y: math.Abs(p.Y)}
}

// SignedDistanceField exposes the sampling contract shared by shapes and scenes.
type SignedDistanceField interface {
	Distance(point Point) float64
}

// FieldFunc adapts a function into a SignedDistanceField.
type FieldFunc func(Point) float64

// Distance invokes the wrapped sampling function.
func (f FieldFunc) Distance(point Point) float64 {
	return f(point)
}

// Shape is the closed set of primitives a Scene can hold: Circle and Box.
type Shape interface {
	SignedDistanceField
	// Bounds returns the axis-aligned box enclosing the shape.
	Bounds() Box
	isShape()
}

// Circle describes an analytic circle signed distance function.
type Circle struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
}

// Distance calculates the signed distance from a point to the circle outline.
func (c Circle) Distance(point Point) float64 {
	//1.- The radius is subtracted from the distance between the point and center.
	return c.Center.Sub(point).Length() - c.Radius
}

// Bounds returns the square enclosing the circle.
func (c Circle) Bounds() Box {
	return Box{Center: c.Center, HalfExtent: Point{X: c.Radius, Y: c.Radius}}
}

func (Circle) isShape() {}

// Box describes an axis-aligned rectangle by its center and half extents.
type Box struct {
	Center     Point `json:"center"`
	HalfExtent Point `json:"halfExtent"`
}

// Distance calculates the exact signed distance from a point to the box outline.
func (b Box) Distance(point Point) float64 {
	//1.- Fold the query into the first quadrant relative to the box center.
	offset := point.Sub(b.Center).Abs().Sub(b.HalfExtent)
	//2.- Outside the box only the positive components contribute.
	outside := Point{X: math.Max(offset.X, 0), Y: math.Max(offset.Y, 0)}.Length()
	//3.- Inside the box the nearest edge is the least negative component.
	inside := math.Min(math.Max(offset.X, offset.Y), 0)
	return outside + inside
}

// Bounds returns the box itself.
func (b Box) Bounds() Box { return b }

// Min returns the lower-left corner.
func (b Box) Min() Point { return b.Center.Sub(b.HalfExtent) }

// Max returns the upper-right corner.
func (b Box) Max() Point { return b.Center.Add(b.HalfExtent) }

func (Box) isShape() {}

var (
	_ Shape = Circle{}
	_ Shape = Box{}
)
