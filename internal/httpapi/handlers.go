// Package httpapi exposes the viewer page, its websocket endpoint and the
// stateless trace API over gin.
package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"spheretrace/visualizer/internal/input"
	"spheretrace/visualizer/internal/logging"
	"spheretrace/visualizer/internal/render"
	"spheretrace/visualizer/internal/simulation"
)

// SessionCounter reports live viewer sessions.
type SessionCounter interface {
	ActiveSessions() int
}

// Options configures the HandlerSet.
type Options struct {
	Logger   *zap.Logger
	Scene    *simulation.Scene
	Viewport simulation.Viewport
	Tracer   simulation.TracerOptions
	Renderer *render.Renderer
	Monitor  *simulation.FrameMonitor
	// Viewer serves the websocket endpoint. Nil disables /ws.
	Viewer     http.Handler
	Sessions   SessionCounter
	Limiter    *KeyedLimiter
	Page       []byte
	TimeSource func() time.Time
	// MaxSnapshotPixels bounds width*height of /api/frame.png. Zero uses
	// DefaultMaxSnapshotPixels.
	MaxSnapshotPixels int
}

// DefaultMaxSnapshotPixels caps snapshot area when no limit is configured.
const DefaultMaxSnapshotPixels = 3840 * 2160

// HandlerSet bundles the viewer HTTP handlers.
type HandlerSet struct {
	logger    *zap.Logger
	scene     *simulation.Scene
	viewport  simulation.Viewport
	tracer    simulation.TracerOptions
	renderer  *render.Renderer
	monitor   *simulation.FrameMonitor
	viewer    http.Handler
	sessions  SessionCounter
	limiter   *KeyedLimiter
	page      []byte
	maxPixels int
	now       func() time.Time
	started   time.Time
	snapshots atomic.Int64
	denied    atomic.Int64
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	scene := opts.Scene
	if scene == nil {
		scene = simulation.NewScene(opts.Tracer.MaxDistance)
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = render.New(render.DefaultStyle)
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = simulation.NewFrameMonitor()
	}
	maxPixels := opts.MaxSnapshotPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxSnapshotPixels
	}
	return &HandlerSet{
		logger:    logger,
		scene:     scene,
		viewport:  opts.Viewport,
		tracer:    opts.Tracer,
		renderer:  renderer,
		monitor:   monitor,
		viewer:    opts.Viewer,
		sessions:  opts.Sessions,
		limiter:   opts.Limiter,
		page:      opts.Page,
		maxPixels: maxPixels,
		now:       now,
		started:   now(),
	}
}

// Engine builds the gin router with every route attached.
func (h *HandlerSet) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), logging.GinMiddleware(h.logger))

	engine.GET("/", h.servePage)
	engine.GET("/healthz", h.health)
	if h.viewer != nil {
		engine.GET("/ws", gin.WrapH(h.viewer))
	}
	api := engine.Group("/api")
	{
		api.GET("/scene", h.sceneHandler)
		api.GET("/trace", h.traceHandler)
		api.GET("/frame.png", h.frameHandler)
		api.GET("/stats", h.statsHandler)
	}
	return engine
}

// Handler returns the root handler: gzip for everything except the websocket
// upgrade, which needs the raw connection.
func (h *HandlerSet) Handler() http.Handler {
	engine := h.Engine()
	mux := http.NewServeMux()
	mux.Handle("/ws", engine)
	mux.Handle("/", gzhttp.GzipHandler(engine))
	return mux
}

func (h *HandlerSet) servePage(c *gin.Context) {
	if len(h.page) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "viewer page unavailable"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", h.page)
}

func (h *HandlerSet) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *HandlerSet) sceneHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"circles":     nonNil(h.scene.Circles()),
		"boxes":       nonNil(h.scene.Boxes()),
		"maxDistance": h.scene.MaxDistance(),
		"viewport":    h.viewport,
	})
}

// traceHandler marches sx,sy toward tx,ty; width and height optionally
// replace the configured viewport.
func (h *HandlerSet) traceHandler(c *gin.Context) {
	viewport, err := viewportParam(c, h.viewport)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	source, err := pointParam(c, "sx", "sy", nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := pointParam(c, "tx", "ty", nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.trace(viewport, source, target))
}

// frameHandler renders a PNG snapshot. The source defaults to the viewport
// center and the target to the origin.
func (h *HandlerSet) frameHandler(c *gin.Context) {
	reqLogger := logging.LoggerFromContext(c.Request.Context())
	if !h.limiter.Allow(c.ClientIP()) {
		h.denied.Add(1)
		reqLogger.Warn("snapshot denied: rate limit exceeded", zap.String("client", c.ClientIP()))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}
	viewport, err := viewportParam(c, h.viewport)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	//1.- The paint buffer is width*height*4 bytes; refuse it before allocating.
	if pixels := viewport.Width * viewport.Height; pixels > h.maxPixels {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("snapshot %dx%d exceeds %d pixels", viewport.Width, viewport.Height, h.maxPixels),
		})
		return
	}
	center := viewport.Center()
	source, err := pointParam(c, "sx", "sy", &center)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	origin := simulation.Pt(0, 0)
	target, err := pointParam(c, "tx", "ty", &origin)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	frame := render.Frame{Viewport: viewport, Scene: h.scene, Trace: h.trace(viewport, source, target)}
	if err := h.renderer.EncodePNG(&buf, frame); err != nil {
		reqLogger.Error("snapshot render failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	h.snapshots.Add(1)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *HandlerSet) statsHandler(c *gin.Context) {
	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.ActiveSessions()
	}
	stats := h.monitor.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"sessions":        sessions,
		"uptimeSeconds":   h.now().Sub(h.started).Seconds(),
		"frames":          stats,
		"averageFps":      stats.AverageFPS(),
		"snapshots":       h.snapshots.Load(),
		"snapshotsDenied": h.denied.Load(),
	})
}

func (h *HandlerSet) trace(viewport simulation.Viewport, source, target simulation.Point) simulation.Trace {
	tracer := simulation.NewTracer(h.scene, viewport, h.tracer)
	start := h.now()
	trace := tracer.Trace(source, target)
	h.monitor.Observe(h.now().Sub(start), trace)
	return trace
}

// pointParam reads a coordinate pair. A nil fallback makes both keys required.
func pointParam(c *gin.Context, xKey, yKey string, fallback *simulation.Point) (simulation.Point, error) {
	rawX, okX := c.GetQuery(xKey)
	rawY, okY := c.GetQuery(yKey)
	if !okX && !okY && fallback != nil {
		return *fallback, nil
	}
	x, err := strconv.ParseFloat(rawX, 64)
	if err != nil {
		return simulation.Point{}, fmt.Errorf("query %s: %w", xKey, err)
	}
	y, err := strconv.ParseFloat(rawY, 64)
	if err != nil {
		return simulation.Point{}, fmt.Errorf("query %s: %w", yKey, err)
	}
	if err := input.Validate(input.Event{Type: input.EventMove, X: x, Y: y}, input.DefaultLimits); err != nil {
		return simulation.Point{}, fmt.Errorf("query %s,%s: %w", xKey, yKey, err)
	}
	return simulation.Pt(x, y), nil
}

func viewportParam(c *gin.Context, fallback simulation.Viewport) (simulation.Viewport, error) {
	rawW, okW := c.GetQuery("width")
	rawH, okH := c.GetQuery("height")
	if !okW && !okH {
		return fallback, nil
	}
	width, err := strconv.Atoi(rawW)
	if err != nil {
		return simulation.Viewport{}, fmt.Errorf("query width: %w", err)
	}
	height, err := strconv.Atoi(rawH)
	if err != nil {
		return simulation.Viewport{}, fmt.Errorf("query height: %w", err)
	}
	if err := input.Validate(input.Event{Type: input.EventResize, Width: width, Height: height}, input.DefaultLimits); err != nil {
		return simulation.Viewport{}, err
	}
	return simulation.Viewport{Width: width, Height: height}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
