package ctxutil

import (
	"context"
	"strings"
)

type requestDataKey struct{}

// RequestData is the caller identity attached by the auth middleware.
type RequestData struct {
	TokenString string
	UserID      string
	SessionID   string
}

// SessionKey scopes the single-flight guard. Tokens without a session claim
// fall back to the user id.
func (rd *RequestData) SessionKey() string {
	if rd == nil {
		return ""
	}
	if s := strings.TrimSpace(rd.SessionID); s != "" {
		return rd.UserID + ":" + s
	}
	return rd.UserID
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
