// Package edge classifies browser requests by host, guards the platform and
// institute surfaces, and rewrites paths to the surface-specific front-end tree.
package edge

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/tenancy"
)

// Action is the outcome of routing a request.
type Action string

const (
	ActionPass     Action = "pass"
	ActionRewrite  Action = "rewrite"
	ActionRedirect Action = "redirect"
)

// Surface path prefixes of the front-end.
const (
	PlatformPrefix = "/platform"
	SchoolPrefix   = "/school"
	SitePrefix     = "/site"
	LoginPath      = "/login"
)

// exemptPrefixes bypass guards and rewriting.
var exemptPrefixes = []string{LoginPath, "/api", "/_next", "/favicon.ico"}

// Decision is what the router does with a request.
type Decision struct {
	Action      Action
	Surface     tenancy.Surface
	InstituteID string // resolved tenant for TENANT requests
	Path        string // rewritten path for ActionRewrite
	Location    string // target for ActionRedirect
}

// Router decides how browser requests are routed.
type Router struct {
	resolver *tenancy.Resolver
	tokens   *auth.TokenService
	log      *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(rt *Router) {
		if l != nil {
			rt.log = l
		}
	}
}

// NewRouter builds a router.
func NewRouter(resolver *tenancy.Resolver, tokens *auth.TokenService, opts ...Option) *Router {
	rt := &Router{resolver: resolver, tokens: tokens, log: obs.Logger()}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// IsExempt reports whether path skips guards and rewriting.
func IsExempt(path string) bool {
	for _, p := range exemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RouteLabel returns the metrics label for r: the exempt prefix it falls under,
// or the surface prefix its host routes to. Paths never reach the label.
func (rt *Router) RouteLabel(r *http.Request) string {
	for _, p := range exemptPrefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return p
		}
	}
	return surfacePrefix(rt.resolver.Classify(r.Host).Surface)
}

func hasSegmentPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Decide evaluates the routing state machine for r. Inbound override headers
// are never consulted.
func (rt *Router) Decide(r *http.Request) Decision {
	res := rt.resolver.Resolve(r.Context(), r.Host, "")
	d := Decision{Surface: res.Surface}
	if d.Surface == tenancy.SurfaceTenant {
		if !res.Resolved() {
			d.Surface = tenancy.SurfacePublic
		} else {
			d.InstituteID = res.InstituteID
		}
	}
	path := r.URL.Path
	if path == "" {
		path = "/"
	}

	if IsExempt(path) {
		d.Action = ActionPass
		return d
	}

	switch d.Surface {
	case tenancy.SurfacePlatform:
		claims, ok := rt.tokens.Verify(auth.TokenFromRequest(r))
		if !ok || claims.Target != auth.AudiencePlatform || len(claims.Roles) == 0 {
			return redirect(d, loginLocation(auth.AudiencePlatform))
		}
	case tenancy.SurfaceTenant:
		claims, ok := rt.tokens.Verify(auth.TokenFromRequest(r))
		switch {
		case ok && claims.Target == auth.AudiencePlatform:
			return redirect(d, platformHome(r, res.Host))
		case !ok || claims.Target != auth.AudienceInstitute || claims.InstituteID != res.InstituteID:
			return redirect(d, loginLocation(auth.AudienceInstitute))
		}
	}

	prefix := surfacePrefix(d.Surface)
	if hasSegmentPrefix(path, prefix) {
		d.Action = ActionPass
		return d
	}
	d.Action = ActionRewrite
	if path == "/" {
		d.Path = prefix
	} else {
		d.Path = prefix + path
	}
	return d
}

func redirect(d Decision, location string) Decision {
	d.Action = ActionRedirect
	d.Location = location
	return d
}

func loginLocation(target auth.Audience) string {
	return LoginPath + "?" + url.Values{"target": {string(target)}}.Encode()
}

func platformHome(r *http.Request, h tenancy.Host) string {
	u := url.URL{Scheme: requestScheme(r), Host: h.PlatformHost(), Path: PlatformPrefix}
	return u.String()
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func surfacePrefix(s tenancy.Surface) string {
	switch s {
	case tenancy.SurfacePlatform:
		return PlatformPrefix
	case tenancy.SurfaceTenant:
		return SchoolPrefix
	default:
		return SitePrefix
	}
}

// Middleware applies decisions: redirects with 307, rewrites the request path
// for next, and replaces any client-supplied tenant header with the resolved one.
func (rt *Router) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := rt.Decide(r)
		obs.EdgeDecisions.WithLabelValues(string(d.Surface), string(d.Action)).Inc()
		rt.log.Debug("edge decision",
			zap.String("host", r.Host),
			zap.String("path", r.URL.Path),
			zap.String("surface", string(d.Surface)),
			zap.String("action", string(d.Action)),
			zap.String("location", d.Location),
			zap.String("rewrite", d.Path))

		if d.Action == ActionRedirect {
			http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
			return
		}

		r2 := r.Clone(r.Context())
		r2.Header.Del(tenancy.OverrideHeader)
		if d.InstituteID != "" {
			r2.Header.Set(tenancy.OverrideHeader, d.InstituteID)
		}
		if d.Action == ActionRewrite {
			r2.URL.Path = d.Path
			r2.URL.RawPath = ""
			r2.RequestURI = r2.URL.RequestURI()
		}
		next.ServeHTTP(w, r2)
	})
}
