package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/backoffice/internal/core"
)

// withImportMetadata tags ctx as an API-triggered import and adds the
// client IP and User-Agent for the import log lines.
func withImportMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithTrigger(ctx, core.TriggerAPI)
	ctx = core.ContextWithIPAddress(ctx, clientIP(r.RemoteAddr))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
