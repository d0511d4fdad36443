package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/mapexport/internal/core"
)

// sessionHeader carries the client session when the body has none.
const sessionHeader = "X-Session-ID"

// withRequestMetadata records the client IP and session for export logging
// and session replacement.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, clientIP(r))
	if id := r.Header.Get(sessionHeader); id != "" {
		ctx = core.ContextWithSessionID(ctx, id)
	}
	return ctx
}
