package waf

import (
	"context"
	"log/slog"
	"time"
)

// AccessLogger writes one structured record per handled request. Denial
// records are the sole audit trail for why a request was rejected, so
// they carry the rule, the reason, the client IP, the declared host, and
// the full target. It uses slog.LogAttrs for low-allocation logging on
// the hot path.
type AccessLogger struct {
	logger *slog.Logger
}

// AccessLogEntry contains all fields for a single access log record.
type AccessLogEntry struct {
	// Timestamp when the request was received.
	Timestamp time.Time

	// Method is the HTTP method as presented by the client.
	Method string

	// Host is the host the client declared.
	Host string

	// Path is the request path used for rule matching.
	Path string

	// Target is the full request target from the request line.
	Target string

	// ClientAddr is the transport-layer peer address.
	ClientAddr string

	// StatusCode is the status relayed from the origin. Zero when denied.
	StatusCode int

	// Duration is the time to process the request.
	Duration time.Duration

	// BytesWritten is the relayed body size.
	BytesWritten int64

	// Denied is true when the request was rejected.
	Denied bool

	// Rule identifies which rule or failure produced the denial.
	Rule string

	// Reason is the operator-facing denial reason.
	Reason string

	// Error describes a forwarding or write failure, if any.
	Error string

	// UserAgent is the client's User-Agent header.
	UserAgent string
}

// NewAccessLogger creates an AccessLogger that writes to the given
// slog.Logger. For best performance, pass a logger configured with
// slog.NewJSONHandler.
func NewAccessLogger(logger *slog.Logger) *AccessLogger {
	return &AccessLogger{logger: logger}
}

// Log writes an access log entry using slog.LogAttrs to minimize
// allocations.
func (al *AccessLogger) Log(e AccessLogEntry) {
	attrs := make([]slog.Attr, 0, 12)

	attrs = append(attrs,
		slog.Time("timestamp", e.Timestamp),
		slog.String("method", e.Method),
		slog.String("host", e.Host),
		slog.String("path", e.Path),
		slog.String("client", e.ClientAddr),
	)

	if e.Denied {
		attrs = append(attrs,
			slog.Bool("denied", true),
			slog.String("rule", e.Rule),
			slog.String("reason", e.Reason),
			slog.String("target", e.Target),
		)
	} else {
		attrs = append(attrs,
			slog.Int("status", e.StatusCode),
			slog.Int64("bytes", e.BytesWritten),
		)
	}

	attrs = append(attrs, slog.Duration("duration", e.Duration))

	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}

	if e.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", e.UserAgent))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "access", attrs...)
}
