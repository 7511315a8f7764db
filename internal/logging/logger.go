package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spheretrace/visualizer/internal/config"
)

// RequestIDHeader is the HTTP header carrying request identifiers.
const RequestIDHeader = "X-Request-ID"

const (
	// SessionIDField tags every log line emitted on behalf of a viewer session.
	SessionIDField = "session_id"
	// RequestIDField tags every log line emitted for an HTTP request.
	RequestIDField = "request_id"
)

type contextKey string

const loggerContextKey = contextKey("spheretrace-logger")

// New builds a JSON zap logger from configuration and installs it as the
// global fallback.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.MessageKey = "message"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{"stdout"}
	if path := strings.TrimSpace(cfg.Path); path != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, path)
	}
	logger, err := zcfg.Build(zap.Fields(zap.String("service", "spheretrace")))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	ReplaceGlobals(logger)
	return logger, nil
}

// NewTestLogger returns a logger that discards output, suitable for tests.
func NewTestLogger() *zap.Logger {
	return zap.NewNop()
}

// ReplaceGlobals swaps the fallback logger used when no context logger is present.
func ReplaceGlobals(logger *zap.Logger) {
	if logger == nil {
		return
	}
	zap.ReplaceGlobals(logger)
}

// L returns the current global logger.
func L() *zap.Logger {
	return zap.L()
}

// ContextWithLogger stores a logger in the provided context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext retrieves a logger from context or falls back to the global logger.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return L()
}

// GenerateID creates a random 8-byte identifier represented as hex.
func GenerateID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return hex.EncodeToString(buf[:])
	}
	return fmt.Sprintf("%x", time.Now().UnixNano())
}

// WithSession derives a session-scoped logger and stores it in the context.
// An empty id is replaced by a generated one.
func WithSession(ctx context.Context, base *zap.Logger, id string) (context.Context, *zap.Logger, string) {
	sid := strings.TrimSpace(id)
	if sid == "" {
		sid = GenerateID()
	}
	if base == nil {
		base = L()
	}
	derived := base.With(zap.String(SessionIDField, sid))
	return ContextWithLogger(ctx, derived), derived, sid
}

// GinMiddleware tags each request with an identifier, stores a derived logger
// on the request context and logs completion.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	if base == nil {
		base = L()
	}
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if rid == "" {
			rid = GenerateID()
		}
		logger := base.With(zap.String(RequestIDField, rid))
		c.Request = c.Request.WithContext(ContextWithLogger(c.Request.Context(), logger))
		c.Header(RequestIDHeader, rid)
		start := time.Now()

		c.Next()

		logger.Debug("request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
