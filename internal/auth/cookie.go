package auth

import (
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"instituteos.app/internal/tenancy"
)

// CookieName is the session cookie shared by the edge and the API.
const CookieName = "auth_token"

// SessionMaxAge matches the token lifetime.
const SessionMaxAge = DefaultTokenTTL

// CookieDomain returns the domain attribute for h: the registrable root so the
// session spans platform and tenant subdomains, or empty on loopback, IP and
// public suffix hosts, where browsers reject a domain attribute.
func CookieDomain(h tenancy.Host) string {
	if h.Root == "" || h.Loopback() || net.ParseIP(h.Root) != nil {
		return ""
	}
	if suffix, _ := publicsuffix.PublicSuffix(h.Root); suffix == h.Root {
		return ""
	}
	return h.Root
}

// SessionCookie builds the cookie carrying token for host h.
func SessionCookie(token string, h tenancy.Host, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Domain:   CookieDomain(h),
		MaxAge:   int(SessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie expires the session cookie for host h.
func ClearSessionCookie(h tenancy.Host, secure bool) *http.Cookie {
	c := SessionCookie("", h, secure)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// TokenFromRequest returns the bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
