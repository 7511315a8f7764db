package input

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock exposes the current time for rate limiting decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock for functional adapters.
func (c ClockFunc) Now() time.Time { return c() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// GateConfig controls ordering and throughput for one session's events.
type GateConfig struct {
	// MinMoveInterval is the shortest spacing between accepted move events.
	MinMoveInterval time.Duration
}

// Decision summarises whether an event passed the gate.
type Decision struct {
	Accepted bool
	Reason   RejectReason
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Sequence    uint64 `json:"sequence"`
	RateLimited uint64 `json:"rateLimited"`
	Invalid     uint64 `json:"invalid"`
}

// GateOption customises gate construction.
type GateOption func(*Gate)

// WithClock overrides the time source.
func WithClock(clock Clock) GateOption {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// Gate drops out-of-order events and throttles pointer moves for a single
// viewer session. Sequence zero means unsequenced and skips ordering.
type Gate struct {
	mu       sync.Mutex
	cfg      GateConfig
	clock    Clock
	logger   *zap.Logger
	lastSeq  uint64
	lastMove time.Time
	hasMove  bool
	deferred *Event
	drops    DropCounters
}

// NewGate constructs a gate for one session.
func NewGate(cfg GateConfig, logger *zap.Logger, opts ...GateOption) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{cfg: cfg, clock: systemClock{}, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate decides whether ev should reach the session state.
func (g *Gate) Evaluate(ev Event) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	//1.- Reject replays and reordering when the client numbers its events.
	if ev.Seq != 0 {
		if ev.Seq <= g.lastSeq {
			g.drops.Sequence++
			g.logger.Debug("event dropped", zap.String("reason", string(RejectSequence)), zap.Uint64("seq", ev.Seq), zap.Uint64("last_seq", g.lastSeq))
			return Decision{Reason: RejectSequence}
		}
	}

	//2.- Moves faster than the configured spacing wait for the next frame instead of applying now.
	if ev.Type == EventMove && g.cfg.MinMoveInterval > 0 {
		now := g.clock.Now()
		if g.hasMove && now.Sub(g.lastMove) < g.cfg.MinMoveInterval {
			//3.- Hold the newest throttled move so the trailing pointer position still lands.
			g.drops.RateLimited++
			deferred := ev
			g.deferred = &deferred
			if ev.Seq != 0 {
				g.lastSeq = ev.Seq
			}
			return Decision{Reason: RejectRateLimited}
		}
		g.lastMove = now
		g.hasMove = true
		g.deferred = nil
	}

	if ev.Seq != 0 {
		g.lastSeq = ev.Seq
	}
	return Decision{Accepted: true}
}

// TakeDeferred returns the newest throttled move not yet superseded and clears
// it. Taking it counts as accepting a move now.
func (g *Gate) TakeDeferred() (Event, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deferred == nil {
		return Event{}, false
	}
	ev := *g.deferred
	g.deferred = nil
	g.lastMove = g.clock.Now()
	g.hasMove = true
	return ev, true
}

// RecordInvalid counts an event that failed decoding.
func (g *Gate) RecordInvalid() {
	g.mu.Lock()
	g.drops.Invalid++
	g.mu.Unlock()
}

// Drops returns a copy of the drop counters.
func (g *Gate) Drops() DropCounters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drops
}
