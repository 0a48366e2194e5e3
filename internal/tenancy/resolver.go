package tenancy

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"instituteos.app/internal/obs"
)

// OverrideHeader names the explicit tenant header honoured at the trusted boundary.
const OverrideHeader = "X-Institute-Id"

var (
	// ErrUnresolved means no tenant could be determined for the request.
	ErrUnresolved = errors.New("tenancy context required")
	// ErrNotFound is returned by lookups for unknown domain labels.
	ErrNotFound = errors.New("tenancy: institute not found")
)

// Lookup finds an institute by its domain label (exact, case-insensitive).
type Lookup interface {
	InstituteIDByDomain(ctx context.Context, domain string) (string, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, domain string) (string, error)

func (f LookupFunc) InstituteIDByDomain(ctx context.Context, domain string) (string, error) {
	return f(ctx, domain)
}

// Resolution is the outcome of resolving a request.
type Resolution struct {
	Host        Host
	Surface     Surface
	InstituteID string // institute id, PlatformSentinel, or empty when unresolved
	Override    bool
}

// Resolved reports whether a tenancy context was determined.
func (r Resolution) Resolved() bool { return r.InstituteID != "" }

// Resolver maps hosts and override headers to tenancy contexts.
type Resolver struct {
	lookup     Lookup
	rootDomain string
	log        *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRootDomain pins the registrable root domain (e.g. instituteos.app).
func WithRootDomain(root string) ResolverOption {
	return func(r *Resolver) {
		r.rootDomain = strings.Trim(strings.ToLower(strings.TrimSpace(root)), ".")
	}
}

// WithLogger sets the logger used for lookup failures.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver constructs a Resolver. lookup may be nil, in which case tenant
// shaped hosts never resolve.
func NewResolver(lookup Lookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{lookup: lookup, log: obs.Logger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RootDomain returns the configured root domain, if any.
func (r *Resolver) RootDomain() string { return r.rootDomain }

// Classify parses hostport using the resolver's root domain.
func (r *Resolver) Classify(hostport string) Host {
	return Classify(hostport, r.rootDomain)
}

// Resolve determines the tenancy context of a request from its host and the
// explicit override value. Callers must pass an empty override unless the value
// was set by a trusted upstream. Lookup failures resolve to nothing.
func (r *Resolver) Resolve(ctx context.Context, hostport, override string) Resolution {
	host := r.Classify(hostport)
	res := Resolution{Host: host, Surface: host.Surface}

	if override = strings.TrimSpace(override); override != "" {
		res.InstituteID = override
		res.Override = true
		if override == PlatformSentinel {
			res.Surface = SurfacePlatform
		} else {
			res.Surface = SurfaceTenant
		}
		obs.TenantResolutions.WithLabelValues("override").Inc()
		return res
	}

	switch host.Surface {
	case SurfacePlatform:
		res.InstituteID = PlatformSentinel
		obs.TenantResolutions.WithLabelValues("platform").Inc()
		return res
	case SurfacePublic:
		obs.TenantResolutions.WithLabelValues("public").Inc()
		return res
	}

	if r.lookup == nil {
		obs.TenantResolutions.WithLabelValues("unresolved").Inc()
		return res
	}
	id, err := r.lookup.InstituteIDByDomain(ctx, strings.ToLower(host.Label))
	switch {
	case err == nil && id != "":
		res.InstituteID = id
		obs.TenantResolutions.WithLabelValues("tenant").Inc()
	case err == nil, errors.Is(err, ErrNotFound):
		obs.TenantResolutions.WithLabelValues("unresolved").Inc()
	default:
		r.log.Warn("tenant lookup failed", zap.String("domain", host.Label), zap.Error(err))
		obs.TenantResolutions.WithLabelValues("error").Inc()
	}
	return res
}
