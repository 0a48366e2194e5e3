package edge

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"instituteos.app/internal/obs"
)

// NewProxy forwards requests to the front-end upstream, keeping the original
// Host header so the upstream can render host-specific views.
func NewProxy(upstream *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			obs.Logger().Warn("upstream unavailable",
				zap.String("upstream", upstream.String()),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}
