package middleware

import (
	"context"
	"net/http"

	"imagereview/internal/model"
)

const (
	// ConnectionIDHeader carries the live connection id of the request's sender.
	ConnectionIDHeader = "X-Connection-ID"
	// LegacyConnectionIDHeader is accepted from older clients.
	LegacyConnectionIDHeader = "X-Socket-ID"

	ConnectionIDKey contextKey = "connection_id"
)

// ConnectionMiddleware records the caller's live connection id, if any, so
// its own broadcasts can be kept from echoing back to it.
func ConnectionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connID := r.Header.Get(ConnectionIDHeader)
		if connID == "" {
			connID = r.Header.Get(LegacyConnectionIDHeader)
		}
		if connID != "" {
			r = r.WithContext(context.WithValue(r.Context(), ConnectionIDKey, connID))
		}
		next.ServeHTTP(w, r)
	})
}

// GetConnectionFromContext builds the caller's connection context. ok is false
// when the request is unauthenticated; ConnectionID may be empty.
func GetConnectionFromContext(ctx context.Context) (model.ConnectionContext, bool) {
	userID, ok := GetUserIDFromContext(ctx)
	if !ok {
		return model.ConnectionContext{}, false
	}
	connID, _ := ctx.Value(ConnectionIDKey).(string)
	return model.ConnectionContext{UserID: userID, ConnectionID: connID}, true
}
