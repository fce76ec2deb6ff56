package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "user_agent"
	ctxKeyTrigger   contextKey = "trigger"
)

// Import triggers recorded in logs.
const (
	TriggerAPI      = "api"
	TriggerBatch    = "batch"
	TriggerSchedule = "schedule"
)

// ContextWithIPAddress adds the client IP to context for import logging.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the User-Agent to context for import logging.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithTrigger records what started an import.
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, trigger)
}

// GetIPAddressFromContext extracts the client IP from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts the User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// GetTriggerFromContext extracts the import trigger from context.
func GetTriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok {
		return v
	}
	return ""
}

// requestAttrs returns the slog attributes for whatever request metadata
// ctx carries.
func requestAttrs(ctx context.Context) []any {
	var attrs []any
	if v := GetTriggerFromContext(ctx); v != "" {
		attrs = append(attrs, "trigger", v)
	}
	if v := GetIPAddressFromContext(ctx); v != "" {
		attrs = append(attrs, "client_ip", v)
	}
	if v := GetUserAgentFromContext(ctx); v != "" {
		attrs = append(attrs, "user_agent", v)
	}
	return attrs
}
