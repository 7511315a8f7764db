package simulation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceDegenerateRay(t *testing.T) {
	tracer := NewTracer(StaticScene(DefaultMaxDistance), Viewport{Width: 800, Height: 600}, TracerOptions{})
	for _, mode := range []SteppingMode{StepVector, StepAngle} {
		tracer.stepping = mode
		trace := tracer.Trace(Pt(50, 100), Pt(50, 100))
		assert.Empty(t, trace.Samples)
		assert.Equal(t, Pt(50, 100), trace.End)
		assert.Equal(t, Degenerate, trace.Termination)
		assert.Zero(t, trace.Steps)
	}
}

func TestTraceHorizontalRayTouchesCircle(t *testing.T) {
	scene := NewScene(DefaultMaxDistance, Circle{Center: Pt(400, 400), Radius: 100})
	for _, mode := range []SteppingMode{StepVector, StepAngle} {
		tracer := NewTracer(scene, Viewport{Width: 800, Height: 800}, TracerOptions{Stepping: mode})
		trace := tracer.Trace(Pt(0, 400), Pt(800, 400))

		require.NotEmpty(t, trace.Samples, mode.String())
		for i, sample := range trace.Samples {
			//1.- The march stays on the horizontal line.
			assert.InDelta(t, 400, sample.Position.Y, 1e-9)
			if i > 0 {
				assert.Less(t, sample.Radius, trace.Samples[i-1].Radius)
			}
		}
		//2.- Contact is reached at the left edge of the circle.
		assert.Equal(t, Contact, trace.Termination)
		assert.GreaterOrEqual(t, trace.End.X, 299.0)
		assert.LessOrEqual(t, trace.End.X, 300.0+1e-9)
		assert.LessOrEqual(t, scene.Distance(trace.End), DefaultContactThreshold)
	}
}

func TestTraceEmptySceneLeavesBounds(t *testing.T) {
	tracer := NewTracer(NewScene(DefaultMaxDistance), Viewport{Width: 1000, Height: 1000}, TracerOptions{})
	trace := tracer.Trace(Pt(0, 0), Pt(1000, 0))

	assert.Equal(t, OutOfBounds, trace.Termination)
	assert.GreaterOrEqual(t, trace.End.X, 1000.0)
	//1.- The sentinel caps each step so the viewport takes two strides.
	assert.Equal(t, []Sample{{Position: Pt(0, 0), Radius: 500}, {Position: Pt(500, 0), Radius: 500}}, trace.Samples)
	assert.Equal(t, 2, trace.Steps)
}

func TestTraceStepLimit(t *testing.T) {
	field := FieldFunc(func(Point) float64 { return 2 })
	tracer := NewTracer(field, Viewport{Width: 1000, Height: 1000}, TracerOptions{MaxSteps: 3})
	trace := tracer.Trace(Pt(10, 10), Pt(20, 10))

	assert.Equal(t, StepLimit, trace.Termination)
	assert.Equal(t, 3, trace.Steps)
	assert.Len(t, trace.Samples, 3)
	assert.InDelta(t, 16, trace.End.X, 1e-9)
}

func TestTraceAlwaysTerminatesWithinBudget(t *testing.T) {
	viewport := Viewport{Width: 120, Height: 80}
	fields := map[string]SignedDistanceField{
		"barely_open": FieldFunc(func(Point) float64 { return DefaultContactThreshold + 1e-9 }),
		"infinite":    FieldFunc(func(Point) float64 { return math.Inf(1) }),
		"nan":         FieldFunc(func(Point) float64 { return math.NaN() }),
	}
	for name, field := range fields {
		tracer := NewTracer(field, viewport, TracerOptions{})
		trace := tracer.Trace(Pt(1, 1), Pt(100, 70))
		assert.NotEqual(t, Stepping, trace.Termination, name)
		assert.LessOrEqual(t, trace.Steps, tracer.MaxSteps(), name)
	}
}

func TestTraceStartingInsideShapeStopsImmediately(t *testing.T) {
	scene := NewScene(DefaultMaxDistance, Circle{Center: Pt(100, 100), Radius: 50})
	tracer := NewTracer(scene, Viewport{Width: 400, Height: 400}, TracerOptions{})
	trace := tracer.Trace(Pt(100, 100), Pt(300, 100))

	assert.Empty(t, trace.Samples)
	assert.Equal(t, Contact, trace.Termination)
	assert.Equal(t, 1, trace.Steps)
}

func TestSteppingModesAgree(t *testing.T) {
	scene := StaticScene(DefaultMaxDistance)
	viewport := Viewport{Width: 1024, Height: 768}
	vector := NewTracer(scene, viewport, TracerOptions{Stepping: StepVector})
	angle := NewTracer(scene, viewport, TracerOptions{Stepping: StepAngle})
	targets := []Point{{700, 500}, {10, 10}, {900, 50}, {50, 700}, {512, 10}, {512, 760}}
	for _, target := range targets {
		source := Pt(512, 384)
		a, b := vector.Trace(source, target), angle.Trace(source, target)
		//1.- Both derivations point the same way, including vertical rays.
		assert.Equal(t, a.Termination, b.Termination, "target %+v", target)
		assert.InDelta(t, a.End.X, b.End.X, 1e-6, "target %+v", target)
		assert.InDelta(t, a.End.Y, b.End.Y, 1e-6, "target %+v", target)
		assert.Equal(t, len(a.Samples), len(b.Samples), "target %+v", target)
	}
}

func TestSamplesSequenceIsRestartable(t *testing.T) {
	tracer := NewTracer(StaticScene(DefaultMaxDistance), Viewport{Width: 1024, Height: 768}, TracerOptions{})
	seq := tracer.Samples(Pt(50, 100), Pt(900, 700))

	var first, second []Sample
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, tracer.Trace(Pt(50, 100), Pt(900, 700)).Samples, first)

	//1.- Breaking out early must not panic and yields exactly one sample.
	count := 0
	for range seq {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestSampleRadiiClearShapes(t *testing.T) {
	scene := StaticScene(DefaultMaxDistance)
	tracer := NewTracer(scene, Viewport{Width: 1024, Height: 768}, TracerOptions{})
	for s := range tracer.Samples(Pt(50, 100), Pt(900, 700)) {
		assert.GreaterOrEqual(t, s.Radius, DefaultContactThreshold)
		for _, shape := range scene.Shapes() {
			//1.- A visibility circle never reaches inside any shape.
			assert.GreaterOrEqual(t, shape.Distance(s.Position)+1e-9, s.Radius)
		}
	}
}

func TestStepBudget(t *testing.T) {
	assert.Equal(t, 1417, StepBudget(Viewport{Width: 1000, Height: 1000}, 1))
	assert.Equal(t, 2, StepBudget(Viewport{}, 1))
	assert.Equal(t, 710, StepBudget(Viewport{Width: 1000, Height: 1000}, 2))
}

func TestTraceJSONUsesTerminationName(t *testing.T) {
	data, err := json.Marshal(Trace{Termination: OutOfBounds, Samples: []Sample{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"termination":"out_of_bounds"`)
}

func TestParseSteppingMode(t *testing.T) {
	mode, err := ParseSteppingMode("angle")
	require.NoError(t, err)
	assert.Equal(t, StepAngle, mode)
	mode, err = ParseSteppingMode("")
	require.NoError(t, err)
	assert.Equal(t, StepVector, mode)
	_, err = ParseSteppingMode("polar")
	assert.Error(t, err)
}

func TestViewportContains(t *testing.T) {
	v := Viewport{Width: 10, Height: 5}
	assert.True(t, v.Contains(Pt(0, 0)))
	assert.True(t, v.Contains(Pt(9.99, 4.99)))
	assert.False(t, v.Contains(Pt(10, 0)))
	assert.False(t, v.Contains(Pt(0, -0.1)))
	assert.Equal(t, Pt(5, 2.5), v.Center())
}
