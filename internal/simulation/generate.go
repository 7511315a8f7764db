package simulation

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrUnknownSceneMode is returned when a scene mode name is not recognised.
var ErrUnknownSceneMode = errors.New("unknown scene mode")

// SceneMode selects how a scene is populated.
type SceneMode string

const (
	// SceneRandom scatters circles and boxes across the viewport.
	SceneRandom SceneMode = "random"
	// SceneStatic is the fixed demo arrangement.
	SceneStatic SceneMode = "static"
	// SceneCustom uses the shapes listed in configuration.
	SceneCustom SceneMode = "custom"
)

// ParseSceneMode validates a configured scene mode.
func ParseSceneMode(raw string) (SceneMode, error) {
	switch mode := SceneMode(raw); mode {
	case SceneRandom, SceneStatic, SceneCustom:
		return mode, nil
	case "":
		return SceneRandom, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSceneMode, raw)
	}
}

// Range is a half-open [Min, Max) interval for random draws.
type Range struct {
	Min float64
	Max float64
}

func (r Range) draw(rng *rand.Rand) float64 {
	return rng.Float64()*(r.Max-r.Min) + r.Min
}

// GeneratorConfig controls random scene population.
type GeneratorConfig struct {
	Circles      int
	Boxes        int
	Buffer       float64
	CircleRadius Range
	BoxHalfSize  Range
	MaxDistance  float64
}

// DefaultGeneratorConfig reproduces the demo's scatter: five of each shape kept
// fifty units away from the viewport edge.
var DefaultGeneratorConfig = GeneratorConfig{
	Circles:      5,
	Boxes:        5,
	Buffer:       50,
	CircleRadius: Range{Min: 30, Max: 100},
	BoxHalfSize:  Range{Min: 10, Max: 100},
	MaxDistance:  DefaultMaxDistance,
}

// GenerateScene scatters circles then boxes with centers inside the buffered
// viewport. The same seed always yields the same scene.
func GenerateScene(viewport Viewport, cfg GeneratorConfig, seed uint64) *Scene {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	center := func() Point {
		return Point{
			X: rng.Float64()*(float64(viewport.Width)-2*cfg.Buffer) + cfg.Buffer,
			Y: rng.Float64()*(float64(viewport.Height)-2*cfg.Buffer) + cfg.Buffer,
		}
	}
	shapes := make([]Shape, 0, cfg.Circles+cfg.Boxes)
	for i := 0; i < cfg.Circles; i++ {
		shapes = append(shapes, Circle{Center: center(), Radius: cfg.CircleRadius.draw(rng)})
	}
	for i := 0; i < cfg.Boxes; i++ {
		c := center()
		shapes = append(shapes, Box{
			Center:     c,
			HalfExtent: Point{X: cfg.BoxHalfSize.draw(rng), Y: cfg.BoxHalfSize.draw(rng)},
		})
	}
	return NewScene(cfg.MaxDistance, shapes...)
}

// StaticScene is the fixed arrangement of three circles and one box.
func StaticScene(maxDistance float64) *Scene {
	return NewScene(maxDistance,
		Circle{Center: Pt(400, 400), Radius: 100},
		Circle{Center: Pt(200, 300), Radius: 70},
		Circle{Center: Pt(600, 180), Radius: 130},
		Box{Center: Pt(600, 450), HalfExtent: Pt(40, 80)},
	)
}
