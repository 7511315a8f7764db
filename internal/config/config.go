package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"spheretrace/visualizer/internal/simulation"
)

// EnvPrefix namespaces every environment override, e.g. SPHERETRACE_VIEWPORT_WIDTH.
const EnvPrefix = "SPHERETRACE"

const (
	// DefaultAddr is the default TCP address the viewer listens on.
	DefaultAddr = "127.0.0.1:8080"
	// DefaultPingInterval controls the keepalive cadence for viewer sessions.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 4096
	// DefaultSnapshotLimit bounds PNG snapshots per client within DefaultSnapshotWindow.
	DefaultSnapshotLimit = 20
	// DefaultSnapshotWindow is the sliding window for snapshot rate limiting.
	DefaultSnapshotWindow = time.Minute
	// DefaultMaxSnapshotPixels caps the area of one PNG snapshot (a 4K frame).
	DefaultMaxSnapshotPixels = 3840 * 2160

	// DefaultWidth and DefaultHeight size the viewport when no client reports one.
	DefaultWidth  = 1280
	DefaultHeight = 720

	// DefaultFPS is the viewer frame rate.
	DefaultFPS = 60.0
	// DefaultMoveInterval throttles pointer moves per session.
	DefaultMoveInterval = 4 * time.Millisecond

	// DefaultLogLevel controls verbosity.
	DefaultLogLevel = "info"
)

// Config captures all runtime tunables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Viewport ViewportConfig `mapstructure:"viewport"`
	Trace    TraceConfig    `mapstructure:"trace"`
	Scene    SceneConfig    `mapstructure:"scene"`
	Viewer   ViewerConfig   `mapstructure:"viewer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP and WebSocket settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
	PingInterval    time.Duration `mapstructure:"pingInterval"`
	MaxPayloadBytes int64         `mapstructure:"maxPayloadBytes"`
	SnapshotLimit   int           `mapstructure:"snapshotLimit"`
	SnapshotWindow  time.Duration `mapstructure:"snapshotWindow"`
	// MaxSnapshotPixels bounds width*height of a rendered snapshot.
	MaxSnapshotPixels int `mapstructure:"maxSnapshotPixels"`
}

// ViewportConfig is the default drawing surface.
type ViewportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// TraceConfig tunes the sphere tracer.
type TraceConfig struct {
	Threshold   float64 `mapstructure:"threshold"`
	MaxDistance float64 `mapstructure:"maxDistance"`
	MaxSteps    int     `mapstructure:"maxSteps"`
	Stepping    string  `mapstructure:"stepping"`
}

// RangeConfig is a half-open [Min, Max) interval.
type RangeConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// CircleConfig lists a circle for custom scenes.
type CircleConfig struct {
	X      float64 `mapstructure:"x"`
	Y      float64 `mapstructure:"y"`
	Radius float64 `mapstructure:"radius"`
}

// BoxConfig lists a box for custom scenes.
type BoxConfig struct {
	X          float64 `mapstructure:"x"`
	Y          float64 `mapstructure:"y"`
	HalfWidth  float64 `mapstructure:"halfWidth"`
	HalfHeight float64 `mapstructure:"halfHeight"`
}

// SceneConfig selects and parameterises the scene.
type SceneConfig struct {
	Mode         string         `mapstructure:"mode"`
	Seed         uint64         `mapstructure:"seed"`
	Circles      int            `mapstructure:"circles"`
	Boxes        int            `mapstructure:"boxes"`
	Buffer       float64        `mapstructure:"buffer"`
	CircleRadius RangeConfig    `mapstructure:"circleRadius"`
	BoxHalfSize  RangeConfig    `mapstructure:"boxHalfSize"`
	CustomCircle []CircleConfig `mapstructure:"customCircles"`
	CustomBox    []BoxConfig    `mapstructure:"customBoxes"`
}

// ViewerConfig tunes interactive sessions.
type ViewerConfig struct {
	FPS          float64       `mapstructure:"fps"`
	MoveInterval time.Duration `mapstructure:"moveInterval"`
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Path        string `mapstructure:"path"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.pingInterval", DefaultPingInterval)
	v.SetDefault("server.maxPayloadBytes", DefaultMaxPayloadBytes)
	v.SetDefault("server.snapshotLimit", DefaultSnapshotLimit)
	v.SetDefault("server.snapshotWindow", DefaultSnapshotWindow)
	v.SetDefault("server.maxSnapshotPixels", DefaultMaxSnapshotPixels)

	v.SetDefault("viewport.width", DefaultWidth)
	v.SetDefault("viewport.height", DefaultHeight)

	v.SetDefault("trace.threshold", simulation.DefaultContactThreshold)
	v.SetDefault("trace.maxDistance", simulation.DefaultMaxDistance)
	v.SetDefault("trace.maxSteps", 0)
	v.SetDefault("trace.stepping", simulation.StepVector.String())

	gen := simulation.DefaultGeneratorConfig
	v.SetDefault("scene.mode", string(simulation.SceneRandom))
	v.SetDefault("scene.seed", 0)
	v.SetDefault("scene.circles", gen.Circles)
	v.SetDefault("scene.boxes", gen.Boxes)
	v.SetDefault("scene.buffer", gen.Buffer)
	v.SetDefault("scene.circleRadius.min", gen.CircleRadius.Min)
	v.SetDefault("scene.circleRadius.max", gen.CircleRadius.Max)
	v.SetDefault("scene.boxHalfSize.min", gen.BoxHalfSize.Min)
	v.SetDefault("scene.boxHalfSize.max", gen.BoxHalfSize.Max)

	v.SetDefault("viewer.fps", DefaultFPS)
	v.SetDefault("viewer.moveInterval", DefaultMoveInterval)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.development", false)
}

// Load reads configuration from the optional YAML file at path and from
// SPHERETRACE_* environment variables, applying defaults and returning every
// validation problem at once.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.Addr = strings.TrimSpace(cfg.Server.Addr)
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Logging.Path = strings.TrimSpace(cfg.Logging.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every inconsistent setting joined into one error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr must not be empty")
	}
	if c.Server.PingInterval <= 0 {
		add("server.pingInterval must be a positive duration, got %v", c.Server.PingInterval)
	}
	if c.Server.MaxPayloadBytes <= 0 {
		add("server.maxPayloadBytes must be positive, got %d", c.Server.MaxPayloadBytes)
	}
	if c.Server.SnapshotLimit < 0 {
		add("server.snapshotLimit must be non-negative, got %d", c.Server.SnapshotLimit)
	}
	if c.Server.SnapshotWindow <= 0 {
		add("server.snapshotWindow must be a positive duration, got %v", c.Server.SnapshotWindow)
	}
	if c.Server.MaxSnapshotPixels <= 0 {
		add("server.maxSnapshotPixels must be positive, got %d", c.Server.MaxSnapshotPixels)
	}

	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		add("viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}

	if c.Trace.Threshold <= 0 {
		add("trace.threshold must be positive, got %v", c.Trace.Threshold)
	}
	if c.Trace.MaxDistance <= c.Trace.Threshold {
		add("trace.maxDistance must exceed trace.threshold, got %v", c.Trace.MaxDistance)
	}
	if c.Trace.MaxSteps < 0 {
		add("trace.maxSteps must be non-negative, got %d", c.Trace.MaxSteps)
	}
	if _, err := simulation.ParseSteppingMode(c.Trace.Stepping); err != nil {
		add("trace.stepping: %v", err)
	}

	mode, err := simulation.ParseSceneMode(c.Scene.Mode)
	if err != nil {
		add("scene.mode: %v", err)
	}
	if mode == simulation.SceneRandom {
		if c.Scene.Circles < 0 || c.Scene.Boxes < 0 {
			add("scene.circles and scene.boxes must be non-negative")
		}
		if c.Scene.Buffer < 0 {
			add("scene.buffer must be non-negative, got %v", c.Scene.Buffer)
		}
		for name, r := range map[string]RangeConfig{"scene.circleRadius": c.Scene.CircleRadius, "scene.boxHalfSize": c.Scene.BoxHalfSize} {
			if r.Min < 0 || r.Max < r.Min {
				add("%s must satisfy 0 <= min <= max, got [%v, %v)", name, r.Min, r.Max)
			}
		}
	}
	for i, circle := range c.Scene.CustomCircle {
		if circle.Radius < 0 {
			add("scene.customCircles[%d].radius must be non-negative", i)
		}
	}
	for i, box := range c.Scene.CustomBox {
		if box.HalfWidth < 0 || box.HalfHeight < 0 {
			add("scene.customBoxes[%d] half sizes must be non-negative", i)
		}
	}

	if c.Viewer.FPS <= 0 {
		add("viewer.fps must be positive, got %v", c.Viewer.FPS)
	}
	if c.Viewer.MoveInterval < 0 {
		add("viewer.moveInterval must be non-negative, got %v", c.Viewer.MoveInterval)
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ViewportSize returns the configured default viewport.
func (c *Config) ViewportSize() simulation.Viewport {
	return simulation.Viewport{Width: c.Viewport.Width, Height: c.Viewport.Height}
}

// TracerOptions converts the trace section into tracer options.
func (c TraceConfig) TracerOptions() simulation.TracerOptions {
	stepping, _ := simulation.ParseSteppingMode(c.Stepping)
	return simulation.TracerOptions{
		ContactThreshold: c.Threshold,
		MaxDistance:      c.MaxDistance,
		MaxSteps:         c.MaxSteps,
		Stepping:         stepping,
	}
}

// Generator converts the scene section into generator settings.
func (c SceneConfig) Generator(maxDistance float64) simulation.GeneratorConfig {
	return simulation.GeneratorConfig{
		Circles:      c.Circles,
		Boxes:        c.Boxes,
		Buffer:       c.Buffer,
		CircleRadius: simulation.Range{Min: c.CircleRadius.Min, Max: c.CircleRadius.Max},
		BoxHalfSize:  simulation.Range{Min: c.BoxHalfSize.Min, Max: c.BoxHalfSize.Max},
		MaxDistance:  maxDistance,
	}
}

// BuildScene constructs the configured scene for viewport. A configured seed
// wins over fallbackSeed, which lets callers vary random scenes per session.
func (c *Config) BuildScene(viewport simulation.Viewport, fallbackSeed uint64) (*simulation.Scene, error) {
	mode, err := simulation.ParseSceneMode(c.Scene.Mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case simulation.SceneStatic:
		return simulation.StaticScene(c.Trace.MaxDistance), nil
	case simulation.SceneCustom:
		shapes := make([]simulation.Shape, 0, len(c.Scene.CustomCircle)+len(c.Scene.CustomBox))
		for _, circle := range c.Scene.CustomCircle {
			shapes = append(shapes, simulation.Circle{Center: simulation.Pt(circle.X, circle.Y), Radius: circle.Radius})
		}
		for _, box := range c.Scene.CustomBox {
			shapes = append(shapes, simulation.Box{
				Center:     simulation.Pt(box.X, box.Y),
				HalfExtent: simulation.Pt(box.HalfWidth, box.HalfHeight),
			})
		}
		return simulation.NewScene(c.Trace.MaxDistance, shapes...), nil
	default:
		seed := fallbackSeed
		if c.Scene.Seed != 0 {
			seed = c.Scene.Seed
		}
		return simulation.GenerateScene(viewport, c.Scene.Generator(c.Trace.MaxDistance), seed), nil
	}
}
