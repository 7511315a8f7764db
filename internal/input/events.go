package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// EventType names a viewer message.
type EventType string

const (
	// EventMove moves the ray target to the pointer.
	EventMove EventType = "move"
	// EventUp moves the ray source to where the pointer was released.
	EventUp EventType = "up"
	// EventResize reports a new drawing surface size.
	EventResize EventType = "resize"
	// EventRegenerate asks for a fresh random scene.
	EventRegenerate EventType = "regenerate"
)

// RejectReason identifies why an event was refused.
type RejectReason string

const (
	RejectNone        RejectReason = ""
	RejectMalformed   RejectReason = "malformed"
	RejectUnknownType RejectReason = "unknown_type"
	RejectCoordinate  RejectReason = "coordinate_range"
	RejectViewport    RejectReason = "viewport_range"
	RejectSequence    RejectReason = "sequence"
	RejectRateLimited RejectReason = "rate_limit"
)

// ErrInvalidEvent is wrapped by every decoding failure.
var ErrInvalidEvent = errors.New("invalid viewer event")

// RejectError carries the reason an event failed validation.
type RejectError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidEvent, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidEvent, e.Reason, e.Detail)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidEvent).
func (e *RejectError) Unwrap() error { return ErrInvalidEvent }

// Event is a decoded viewer message.
type Event struct {
	Type   EventType `json:"type"`
	Seq    uint64    `json:"seq"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

// Limits bounds acceptable event values.
type Limits struct {
	// MaxCoordinate bounds |x| and |y|; pointers may stray outside the canvas.
	MaxCoordinate float64
	// MaxDimension bounds resize width and height.
	MaxDimension int
}

// DefaultLimits accepts any realistic display.
var DefaultLimits = Limits{MaxCoordinate: 1 << 20, MaxDimension: 16384}

// Decode parses and validates a JSON viewer message.
func Decode(payload []byte, limits Limits) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, &RejectError{Reason: RejectMalformed, Detail: err.Error()}
	}
	if err := Validate(ev, limits); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks the fields each event type relies on.
func Validate(ev Event, limits Limits) error {
	switch ev.Type {
	case EventMove, EventUp:
		//1.- Pointer coordinates must be finite and within the configured reach.
		for _, v := range []float64{ev.X, ev.Y} {
			if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limits.MaxCoordinate {
				return &RejectError{Reason: RejectCoordinate, Detail: fmt.Sprintf("(%v, %v)", ev.X, ev.Y)}
			}
		}
	case EventResize:
		//2.- A surface needs positive extent to bound the march.
		if ev.Width <= 0 || ev.Height <= 0 || ev.Width > limits.MaxDimension || ev.Height > limits.MaxDimension {
			return &RejectError{Reason: RejectViewport, Detail: fmt.Sprintf("%dx%d", ev.Width, ev.Height)}
		}
	case EventRegenerate:
	default:
		return &RejectError{Reason: RejectUnknownType, Detail: string(ev.Type)}
	}
	return nil
}

// ReasonOf extracts the RejectReason from an error returned by this package.
func ReasonOf(err error) RejectReason {
	var rejected *RejectError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	if err != nil {
		return RejectMalformed
	}
	return RejectNone
}
