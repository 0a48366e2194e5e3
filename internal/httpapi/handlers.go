package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/institute"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/pricing"
	"instituteos.app/internal/student"
	"instituteos.app/internal/task"
	"instituteos.app/internal/tenancy"
	"instituteos.app/internal/trial"
	"instituteos.app/internal/usage"
)

const (
	serviceName  = "instituteos-api"
	maxBodyBytes = 1 << 20
)

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyCheck checks a pingable dependency such as the database.
type ReadyCheck struct {
	DB interface {
		Ping(ctx context.Context) error
	}
}

func (rp ReadyCheck) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Deps are the services the API is built from.
type Deps struct {
	Resolver   *tenancy.Resolver
	Auth       *auth.Service
	Institutes *institute.Service
	Pricing    *pricing.Service
	Students   *student.Service
	Tasks      *task.Service
	Trial      *trial.Gate
	Usage      *usage.Recorder
	Ready      ReadinessChecker
	Version    string

	// TrustOverrideHeader honours X-Institute-Id; enable only behind the edge.
	TrustOverrideHeader bool
	// TrustForwardedFor keys the login limiter on X-Forwarded-For; enable only
	// behind a proxy that appends the peer address.
	TrustForwardedFor bool
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	LoginBurst    int
	LoginPerSec   float64
}

// API is the HTTP layer.
type API struct {
	Deps
	mux          *http.ServeMux
	loginLimiter *RateLimiter
}

// New wires routes over deps. Without a Resolver every host is classified
// with no tenant lookup.
func New(deps Deps) *API {
	if deps.Ready == nil {
		deps.Ready = ReadyCheck{}
	}
	if deps.Resolver == nil {
		deps.Resolver = tenancy.NewResolver(nil)
	}
	a := &API{
		Deps:         deps,
		mux:          http.NewServeMux(),
		loginLimiter: NewRateLimiter(deps.LoginBurst, deps.LoginPerSec, WithTrustedProxy(deps.TrustForwardedFor)),
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Readyz)
	a.mux.HandleFunc("GET /api/v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	limited := a.loginLimiter.Middleware
	a.mux.Handle("POST /api/v1/auth/login", limited(http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("POST /api/v1/auth/platform-login", limited(http.HandlerFunc(a.handlePlatformLogin)))
	a.mux.HandleFunc("POST /api/v1/auth/logout", a.handleLogout)
	a.mux.Handle("POST /api/v1/auth/register", a.tenantScoped(true, a.handleRegister))

	a.mux.Handle("GET /api/v1/institutes", a.requireAuth(http.HandlerFunc(a.handleListInstitutes)))
	a.mux.Handle("POST /api/v1/institutes", a.requireAuth(http.HandlerFunc(a.handleCreateInstitute)))
	a.mux.Handle("GET /api/v1/institute", a.tenantScoped(true, a.handleGetInstitute))
	a.mux.Handle("PATCH /api/v1/institute", a.tenantScoped(true, a.handleUpdateInstitute))

	a.mux.Handle("GET /api/v1/pricing/calculate", a.tenantScoped(false, a.handlePricingCalculate))
	a.mux.Handle("POST /api/v1/pricing/simulate", a.tenantScoped(false, a.handlePricingSimulate))

	a.mux.Handle("GET /api/v1/students", a.tenantScoped(true, a.handleListStudents))
	a.mux.Handle("POST /api/v1/students", a.tenantScoped(true, a.handleCreateStudent))

	a.mux.Handle("GET /api/v1/tasks", a.tenantScoped(true, a.handleListTasks))
	a.mux.Handle("POST /api/v1/tasks", a.tenantScoped(true, a.handleCreateTask))
	a.mux.Handle("GET /api/v1/tasks/{id}/subtasks", a.tenantScoped(true, a.handleSubTasks))
	a.mux.Handle("PATCH /api/v1/tasks/{id}/status", a.tenantScoped(true, a.handleUpdateTaskStatus))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	return a
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = a.withTenancy(h)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = obs.Instrument(h, a.routeLabel)
	h = CORS(a.Resolver.RootDomain())(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// routeLabel names the registered pattern serving r, without its method.
// Unmatched paths share one label.
func (a *API) routeLabel(r *http.Request) string {
	_, pattern := a.mux.Handler(r)
	if pattern == "" || pattern == "/" {
		return obs.OtherRoute
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.Version,
	})
}

func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.Deps.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	res := a.Resolver.Resolve(r.Context(), r.Host, "")
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.Version,
		"surface": res.Surface,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
