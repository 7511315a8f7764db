// Package viewer runs interactive tracing sessions over WebSocket: the browser
// reports pointer events and receives one trace per animation frame.
package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"spheretrace/visualizer/internal/config"
	"spheretrace/visualizer/internal/input"
	"spheretrace/visualizer/internal/logging"
	"spheretrace/visualizer/internal/simulation"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 8
)

// Options configures the Server.
type Options struct {
	Config  *config.Config
	Logger  *zap.Logger
	Monitor *simulation.FrameMonitor
	// Seed supplies seeds for random scenes. Defaults to the wall clock.
	Seed  func() uint64
	Clock input.Clock
}

// Server upgrades HTTP requests into viewer sessions.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	monitor  *simulation.FrameMonitor
	seed     func() uint64
	clock    input.Clock
	upgrader websocket.Upgrader
	active   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer constructs a Server from options.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	seed := opts.Seed
	if seed == nil {
		seed = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = simulation.NewFrameMonitor()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     opts.Config,
		logger:  logger,
		monitor: monitor,
		seed:    seed,
		clock:   opts.Clock,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: originChecker(opts.Config.Server.AllowedOrigins)}
	return s
}

// originChecker allows the listed origins, or same-origin requests when the
// list is empty.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

// ActiveSessions reports how many sessions are connected.
func (s *Server) ActiveSessions() int { return int(s.active.Load()) }

// Shutdown ends every running session.
func (s *Server) Shutdown() { s.cancel() }

// ServeHTTP upgrades the request and runs the session until the client leaves
// or the server shuts down. The query may carry the initial width and height.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	viewport := s.initialViewport(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	ctx, logger, sid := logging.WithSession(s.ctx, s.logger, "")
	scene, err := s.cfg.BuildScene(viewport, s.seed())
	if err != nil {
		logger.Error("scene build failed", zap.Error(err))
		_ = conn.Close()
		return
	}

	sess := &session{
		id:       sid,
		conn:     conn,
		cfg:      s.cfg,
		logger:   logger,
		monitor:  s.monitor,
		seed:     s.seed,
		gate:     input.NewGate(input.GateConfig{MinMoveInterval: s.cfg.Viewer.MoveInterval}, logger, input.WithClock(s.clock)),
		send:     make(chan []byte, sendBuffer),
		viewport: viewport,
		scene:    scene,
		source:   viewport.Center(),
	}
	sess.rebuildTracer()
	sess.dirty = true
	sess.sceneDirty = true

	s.active.Add(1)
	defer s.active.Add(-1)
	logger.Info("viewer session started", zap.Int("width", viewport.Width), zap.Int("height", viewport.Height), zap.Int("shapes", scene.Len()))
	sess.run(ctx)
	logger.Info("viewer session ended", zap.Any("drops", sess.gate.Drops()))
}

func (s *Server) initialViewport(r *http.Request) simulation.Viewport {
	viewport := s.cfg.ViewportSize()
	query := r.URL.Query()
	width, werr := strconv.Atoi(query.Get("width"))
	height, herr := strconv.Atoi(query.Get("height"))
	if werr == nil && herr == nil {
		candidate := input.Event{Type: input.EventResize, Width: width, Height: height}
		if input.Validate(candidate, input.DefaultLimits) == nil {
			viewport = simulation.Viewport{Width: width, Height: height}
		}
	}
	return viewport
}

type session struct {
	id      string
	conn    *websocket.Conn
	cfg     *config.Config
	logger  *zap.Logger
	monitor *simulation.FrameMonitor
	seed    func() uint64
	gate    *input.Gate
	send    chan []byte
	done    <-chan struct{}

	mu         sync.Mutex
	viewport   simulation.Viewport
	scene      *simulation.Scene
	tracer     *simulation.Tracer
	source     simulation.Point
	target     simulation.Point
	dirty      bool
	sceneDirty bool
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	s.done = ctx.Done()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx)
	}()

	loop := simulation.NewLoop(s.cfg.Viewer.FPS, s.frame)
	loop.Start(ctx)

	//1.- The reader owns the request goroutine; its exit tears the session down.
	s.readLoop()
	cancel()
	loop.Stop()
	<-writerDone
	_ = s.conn.Close()
}

func (s *session) readLoop() {
	pongWait := 2 * s.cfg.Server.PingInterval
	s.conn.SetReadLimit(s.cfg.Server.MaxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("viewer read failed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := input.Decode(payload, input.DefaultLimits)
		if err != nil {
			s.gate.RecordInvalid()
			s.logger.Debug("viewer event rejected", zap.String("reason", string(input.ReasonOf(err))), zap.Error(err))
			s.enqueue(ErrorMessage{Type: MessageError, Reason: string(input.ReasonOf(err)), Message: err.Error()})
			continue
		}
		if decision := s.gate.Evaluate(ev); !decision.Accepted {
			continue
		}
		s.apply(ev)
	}
}

func (s *session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Server.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(writeWait)
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			//2.- Closing unblocks the reader when the server, not the client, ends the session.
			_ = s.conn.Close()
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("viewer write failed", zap.Error(err))
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}

// apply folds an accepted event into the session state.
func (s *session) apply(ev input.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case input.EventMove:
		s.target = simulation.Pt(ev.X, ev.Y)
	case input.EventUp:
		s.source = simulation.Pt(ev.X, ev.Y)
	case input.EventResize:
		s.viewport = simulation.Viewport{Width: ev.Width, Height: ev.Height}
		s.rebuildTracer()
		s.sceneDirty = true
	case input.EventRegenerate:
		scene, err := s.cfg.BuildScene(s.viewport, s.seed())
		if err != nil {
			s.logger.Error("scene rebuild failed", zap.Error(err))
			return
		}
		s.scene = scene
		s.rebuildTracer()
		s.sceneDirty = true
	}
	s.dirty = true
}

// rebuildTracer must be called with mu held.
func (s *session) rebuildTracer() {
	s.tracer = simulation.NewTracer(s.scene, s.viewport, s.cfg.Trace.TracerOptions())
}

// frame applies any throttled pointer move, then traces the current endpoints
// when anything changed since the last frame.
func (s *session) frame(n uint64, _ time.Duration) {
	if ev, ok := s.gate.TakeDeferred(); ok {
		s.apply(ev)
	}
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	var announce *SceneMessage
	if s.sceneDirty {
		s.sceneDirty = false
		announce = &SceneMessage{Type: MessageScene, Session: s.id, Scene: NewSceneView(s.scene), Viewport: s.viewport}
	}
	tracer, source, target := s.tracer, s.source, s.target
	s.mu.Unlock()

	if announce != nil {
		s.enqueueWait(announce)
	}
	start := time.Now()
	trace := tracer.Trace(source, target)
	s.monitor.Observe(time.Since(start), trace)
	s.enqueue(FrameMessage{Type: MessageFrame, Frame: n, Trace: trace})
}

// enqueue hands a message to the writer, dropping it when the client lags;
// every frame supersedes the previous one.
func (s *session) enqueue(msg any) {
	payload, ok := s.encode(msg)
	if !ok {
		return
	}
	select {
	case s.send <- payload:
	default:
		s.logger.Debug("viewer message dropped", zap.Int("bytes", len(payload)))
	}
}

// enqueueWait blocks until the writer accepts msg or the session ends. Scene
// announcements use it because frames are meaningless without them.
func (s *session) enqueueWait(msg any) {
	payload, ok := s.encode(msg)
	if !ok {
		return
	}
	select {
	case s.send <- payload:
	case <-s.done:
	}
}

func (s *session) encode(msg any) ([]byte, bool) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("viewer message encode failed", zap.Error(err))
		return nil, false
	}
	return payload, true
}
