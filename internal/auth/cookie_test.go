package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"instituteos.app/internal/tenancy"
)

func TestSessionCookieDomain(t *testing.T) {
	cases := map[string]string{
		"greenwood.instituteos.app": "instituteos.app",
		"platform.instituteos.app":  "instituteos.app",
		"greenwood.localhost:3000":  "",
		"localhost:3000":            "",
		"127.0.0.1:8080":            "",
		"greenwood.school.co.uk":    "school.co.uk",
		"co.uk":                     "",
	}
	for host, want := range cases {
		c := SessionCookie("tok", tenancy.Classify(host, ""), false)
		if c.Domain != want {
			t.Fatalf("%s: domain %q, want %q", host, c.Domain, want)
		}
		if c.Name != CookieName || c.Path != "/" || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
			t.Fatalf("%s: unexpected attributes %+v", host, c)
		}
		if c.MaxAge != 7*24*60*60 {
			t.Fatalf("%s: max-age %d", host, c.MaxAge)
		}
	}
}

func TestClearSessionCookie(t *testing.T) {
	c := ClearSessionCookie(tenancy.Classify("greenwood.instituteos.app", ""), true)
	if c.MaxAge >= 0 || c.Value != "" || !c.Secure {
		t.Fatalf("unexpected clear cookie %+v", c)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := TokenFromRequest(r); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	if got := TokenFromRequest(r); got != "from-cookie" {
		t.Fatalf("cookie token: %q", got)
	}
	r.Header.Set("Authorization", "Bearer from-header")
	if got := TokenFromRequest(r); got != "from-header" {
		t.Fatalf("bearer token: %q", got)
	}
}

func TestPrincipalAccess(t *testing.T) {
	staff := Principal{InstituteID: "inst-1", Roles: []string{RoleInstituteAdmin}, Audience: AudienceInstitute}
	if !staff.CanAccess("inst-1") || staff.CanAccess("inst-2") || staff.CanAccess("") {
		t.Fatal("staff access must be limited to own institute")
	}
	if err := staff.RequireRole(AudiencePlatform, RoleSuperAdmin); err == nil {
		t.Fatal("staff must not pass platform role check")
	}
	op := Principal{InstituteID: tenancy.PlatformSentinel, Roles: []string{RoleSuperAdmin}, Audience: AudiencePlatform}
	if !op.CanAccess("inst-9") {
		t.Fatal("platform operators may act in any institute")
	}
	if err := op.RequireRole(AudiencePlatform, RoleSuperAdmin); err != nil {
		t.Fatalf("RequireRole: %v", err)
	}
}
