package tenancy

import "context"

type instituteContextKey struct{}

// WithInstitute attaches the resolved institute id (or PlatformSentinel) to ctx.
// Once attached it is authoritative for the rest of the request.
func WithInstitute(ctx context.Context, instituteID string) context.Context {
	if instituteID == "" {
		return ctx
	}
	return context.WithValue(ctx, instituteContextKey{}, instituteID)
}

// InstituteFromContext returns the tenancy context of the request, if any.
func InstituteFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(instituteContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// IsTenant reports whether ctx carries an institute (not the platform sentinel).
func IsTenant(ctx context.Context) bool {
	id, ok := InstituteFromContext(ctx)
	return ok && id != PlatformSentinel
}
