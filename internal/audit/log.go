// Package audit writes security-relevant events to the structured log.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/tenancy"
)

type ctxKey struct{}

// Event names.
const (
	EventLogin              = "auth.login"
	EventLoginFailed        = "auth.login_failed"
	EventPlatformLogin      = "auth.platform_login"
	EventUserRegistered     = "auth.user_registered"
	EventInstituteCreated   = "institute.created"
	EventInstituteUpdated   = "institute.updated"
	EventCrossTenantBlocked = "tenancy.cross_tenant_blocked"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestIDFromContext returns the request id, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request, principal and tenancy context.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	all := make([]zap.Field, 0, len(fields)+5)
	all = append(all, zap.String("type", "audit"), zap.String("event", event))
	if rid := RequestIDFromContext(ctx); rid != "" {
		all = append(all, zap.String("request_id", rid))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		all = append(all, zap.String("actor", p.Subject), zap.String("actor_audience", string(p.Audience)))
	}
	if id, ok := tenancy.InstituteFromContext(ctx); ok {
		all = append(all, zap.String("institute_id", id))
	}
	all = append(all, fields...)
	obs.Logger().Info("audit", all...)
	return nil
}
