package simulation

import (
	"fmt"
	"iter"
	"math"
)

// DefaultContactThreshold is the distance under which a ray counts as touching a surface.
const DefaultContactThreshold = 1.0

// Termination records why a trace stopped.
type Termination int

const (
	// Stepping is the state of a march that has not finished.
	Stepping Termination = iota
	// Contact means the sampled distance fell to the threshold or below.
	Contact
	// OutOfBounds means the ray left the viewport.
	OutOfBounds
	// Degenerate means source and target coincide so no direction exists.
	Degenerate
	// StepLimit means the hard iteration cap stopped the march.
	StepLimit
)

func (t Termination) String() string {
	switch t {
	case Stepping:
		return "stepping"
	case Contact:
		return "contact"
	case OutOfBounds:
		return "out_of_bounds"
	case Degenerate:
		return "degenerate"
	case StepLimit:
		return "step_limit"
	default:
		return fmt.Sprintf("termination(%d)", int(t))
	}
}

// MarshalText encodes the termination by name.
func (t Termination) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// SteppingMode selects how the march direction is derived.
type SteppingMode int

const (
	// StepVector advances along the normalized target-source vector.
	StepVector SteppingMode = iota
	// StepAngle advances along atan(dy/dx) with a sign flag on dx.
	StepAngle
)

// ParseSteppingMode maps a configuration value onto a SteppingMode.
func ParseSteppingMode(raw string) (SteppingMode, error) {
	switch raw {
	case "vector", "":
		return StepVector, nil
	case "angle":
		return StepAngle, nil
	default:
		return StepVector, fmt.Errorf("unknown stepping mode %q", raw)
	}
}

func (m SteppingMode) String() string {
	if m == StepAngle {
		return "angle"
	}
	return "vector"
}

// Viewport bounds the march to [0, Width) x [0, Height).
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether point lies inside the viewport.
func (v Viewport) Contains(point Point) bool {
	return point.X >= 0 && point.X < float64(v.Width) &&
		point.Y >= 0 && point.Y < float64(v.Height)
}

// Center returns the middle of the viewport.
func (v Viewport) Center() Point {
	return Point{X: float64(v.Width) / 2, Y: float64(v.Height) / 2}
}

// Diagonal returns the length of the viewport diagonal.
func (v Viewport) Diagonal() float64 {
	return math.Hypot(float64(v.Width), float64(v.Height))
}

// Sample is one visibility circle along a trace: the position and the
// distance sampled there before stepping.
type Sample struct {
	Position Point   `json:"position"`
	Radius   float64 `json:"radius"`
}

// Trace is a fully evaluated march from Source toward Target.
type Trace struct {
	Source      Point       `json:"source"`
	Target      Point       `json:"target"`
	End         Point       `json:"end"`
	Samples     []Sample    `json:"samples"`
	Termination Termination `json:"termination"`
	Steps       int         `json:"steps"`
}

// TracerOptions tunes the march.
type TracerOptions struct {
	// ContactThreshold is shared by the sample cutoff and the loop cutoff.
	ContactThreshold float64
	// MaxDistance caps a single step. Zero uses the scene's sentinel.
	MaxDistance float64
	// MaxSteps overrides the cap derived from the viewport when positive.
	MaxSteps int
	Stepping SteppingMode
}

// Tracer sphere-traces rays through a field inside a viewport. It holds no
// mutable state and may be shared between goroutines.
type Tracer struct {
	field       SignedDistanceField
	viewport    Viewport
	threshold   float64
	maxDistance float64
	maxSteps    int
	stepping    SteppingMode
}

// NewTracer configures a tracer for the provided field and viewport.
func NewTracer(field SignedDistanceField, viewport Viewport, opts TracerOptions) *Tracer {
	threshold := opts.ContactThreshold
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultContactThreshold
	}
	maxDistance := opts.MaxDistance
	if maxDistance <= 0 || math.IsNaN(maxDistance) {
		maxDistance = DefaultMaxDistance
		if scene, ok := field.(*Scene); ok {
			maxDistance = scene.MaxDistance()
		}
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = StepBudget(viewport, threshold)
	}
	return &Tracer{
		field:       field,
		viewport:    viewport,
		threshold:   threshold,
		maxDistance: maxDistance,
		maxSteps:    maxSteps,
		stepping:    opts.Stepping,
	}
}

// StepBudget derives the hard iteration cap: every step after the first
// advances by more than threshold, so the diagonal bounds the step count.
func StepBudget(viewport Viewport, threshold float64) int {
	if threshold <= 0 {
		threshold = DefaultContactThreshold
	}
	return int(math.Ceil(viewport.Diagonal()/threshold)) + 2
}

// Viewport returns the bounds the tracer marches within.
func (t *Tracer) Viewport() Viewport { return t.viewport }

// MaxSteps returns the hard iteration cap.
func (t *Tracer) MaxSteps() int { return t.maxSteps }

// Samples returns a lazy sequence of the visibility circles between source and
// target. Each range over the sequence runs the march again from source.
func (t *Tracer) Samples(source, target Point) iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		t.march(source, target, yield)
	}
}

// Trace runs the march to completion and collects every sample.
func (t *Tracer) Trace(source, target Point) Trace {
	trace := Trace{Source: source, Target: target, Samples: []Sample{}}
	trace.End, trace.Termination, trace.Steps = t.march(source, target, func(s Sample) bool {
		trace.Samples = append(trace.Samples, s)
		return true
	})
	return trace
}

// march walks from source toward target, handing every sample to yield. It
// returns the terminal point, why the march stopped and how many steps it took.
// A false return from yield abandons the march in the Stepping state.
func (t *Tracer) march(source, target Point, yield func(Sample) bool) (Point, Termination, int) {
	step, ok := t.direction(source, target)
	if !ok {
		//1.- Coincident endpoints have no direction; report the source untouched.
		return source, Degenerate, 0
	}
	current := source
	radius := t.distance(current)
	steps := 0
	for {
		//2.- Only surfaces further than the threshold produce a visible circle.
		if radius >= t.threshold {
			if !yield(Sample{Position: current, Radius: radius}) {
				return current, Stepping, steps
			}
		}
		//3.- Advance by the sampled distance; it cannot overshoot the nearest surface.
		current = current.Add(step.Scale(radius))
		radius = t.distance(current)
		steps++
		switch {
		case !(radius > t.threshold):
			return current, Contact, steps
		case !t.viewport.Contains(current):
			return current, OutOfBounds, steps
		case steps >= t.maxSteps:
			return current, StepLimit, steps
		}
	}
}

func (t *Tracer) distance(point Point) float64 {
	return math.Min(t.field.Distance(point), t.maxDistance)
}

// direction returns the per-unit step for the configured stepping mode, or
// false when source and target coincide.
func (t *Tracer) direction(source, target Point) (Point, bool) {
	if source == target {
		return Point{}, false
	}
	if t.stepping == StepAngle {
		//1.- atan folds opposite directions together; the sign flag on dx unfolds them.
		angle := math.Atan((source.Y - target.Y) / (source.X - target.X))
		sign := 1.0
		if target.X <= source.X {
			sign = -1
		}
		return Point{X: sign * math.Cos(angle), Y: sign * math.Sin(angle)}, true
	}
	return target.Sub(source).Normalize(), true
}
