package gateway

import (
	"context"

	"github.com/rs/zerolog"
)

type sendMetaContextKey string

const (
	sessionIDContextKey sendMetaContextKey = "session_id"
	sendIDContextKey    sendMetaContextKey = "send_id"
	threadIDContextKey  sendMetaContextKey = "thread_id"
)

// WithSendMeta stores the identifiers of a send in ctx so gateways and
// their middleware can correlate log lines of one request.
func WithSendMeta(ctx context.Context, sessionID, sendID, threadID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID != "" {
		ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
	}
	if sendID != "" {
		ctx = context.WithValue(ctx, sendIDContextKey, sendID)
	}
	if threadID != "" {
		ctx = context.WithValue(ctx, threadIDContextKey, threadID)
	}
	return ctx
}

// SessionIDFromContext returns the session id attached with WithSendMeta, or "".
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(sessionIDContextKey).(string)
	return v
}

// SendIDFromContext returns the send id attached with WithSendMeta, or "".
func SendIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(sendIDContextKey).(string)
	return v
}

// ThreadIDFromContext returns the target thread id attached with WithSendMeta, or "".
func ThreadIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(threadIDContextKey).(string)
	return v
}

// sendLogger adds the send identifiers found in ctx to base.
func sendLogger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	lc := base.With()
	if v := SessionIDFromContext(ctx); v != "" {
		lc = lc.Str("session_id", v)
	}
	if v := SendIDFromContext(ctx); v != "" {
		lc = lc.Str("send_id", v)
	}
	if v := ThreadIDFromContext(ctx); v != "" {
		lc = lc.Str("thread_id", v)
	}
	return lc.Logger()
}
