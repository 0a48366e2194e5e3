package auth

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"instituteos.app/internal/tenancy"
)

func newTestTokens(t *testing.T, now *time.Time) *TokenService {
	t.Helper()
	svc, err := NewTokenService("test-secret", WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService("  "); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestInstituteTokenRoundTrip(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, &now)

	token, expiresAt, err := svc.IssueInstituteToken("user-1", "a@greenwood.edu", "inst-1", []string{" TEACHER", "PRINCIPAL", "TEACHER", ""})
	if err != nil {
		t.Fatalf("IssueInstituteToken: %v", err)
	}
	if got := expiresAt.Sub(now.UTC()); got != DefaultTokenTTL {
		t.Fatalf("unexpected ttl %v", got)
	}
	claims, ok := svc.Verify(token)
	if !ok {
		t.Fatal("expected token to verify")
	}
	if claims.Subject != "user-1" || claims.InstituteID != "inst-1" || claims.Target != AudienceInstitute {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if strings.Join(claims.Roles, ",") != "TEACHER,PRINCIPAL" {
		t.Fatalf("roles not normalized: %v", claims.Roles)
	}
	if claims.ID == "" || claims.Issuer != defaultIssuer {
		t.Fatalf("registered claims missing: %+v", claims.RegisteredClaims)
	}
}

func TestVerifyIsRepeatable(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, &now)

	token, _, err := svc.IssueInstituteToken("user-1", "a@greenwood.edu", "inst-1", []string{RoleTeacher})
	if err != nil {
		t.Fatalf("IssueInstituteToken: %v", err)
	}
	first, ok := svc.Verify(token)
	if !ok {
		t.Fatalf("first verify failed")
	}
	now = now.Add(time.Hour)
	second, ok := svc.Verify(token)
	if !ok {
		t.Fatalf("second verify failed")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("verify results differ:\n%+v\n%+v", first, second)
	}
}

func TestPlatformTokenCarriesSentinel(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, &now)

	token, _, err := svc.IssuePlatformToken("op-1", "ops@instituteos.app", []string{RoleSuperAdmin})
	if err != nil {
		t.Fatalf("IssuePlatformToken: %v", err)
	}
	claims, ok := svc.Verify(token)
	if !ok {
		t.Fatal("expected token to verify")
	}
	if claims.InstituteID != tenancy.PlatformSentinel || claims.Target != AudiencePlatform {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestPlatformTokenRequiresRoles(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, &now)
	for _, roles := range [][]string{nil, {}, {" ", ""}} {
		if _, _, err := svc.IssuePlatformToken("op-1", "ops@x", roles); err == nil {
			t.Fatalf("expected error for roles %v", roles)
		}
	}
}

func TestInstituteTokenRejectsSentinel(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, &now)
	if _, _, err := svc.IssueInstituteToken("u", "e", tenancy.PlatformSentinel, nil); err == nil {
		t.Fatal("expected error for sentinel institute id")
	}
	if _, _, err := svc.IssueInstituteToken("u", "e", "", nil); err == nil {
		t.Fatal("expected error for empty institute id")
	}
}

func TestVerifyExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestTokens(t, &now)
	token, _, err := svc.IssueInstituteToken("user-1", "a@b.c", "inst-1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(DefaultTokenTTL - time.Minute)
	if _, ok := svc.Verify(token); !ok {
		t.Fatal("token should still be valid")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := svc.Verify(token); ok {
		t.Fatal("expired token must not verify")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, &now)
	token, _, err := svc.IssueInstituteToken("user-1", "a@b.c", "inst-1", []string{RoleTeacher})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, err := NewTokenService("other-secret", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	if _, ok := other.Verify(token); ok {
		t.Fatal("token signed with a different secret must not verify")
	}

	parts := strings.Split(token, ".")
	parts[1] = parts[1][:len(parts[1])-2] + "AA"
	if _, ok := svc.Verify(strings.Join(parts, ".")); ok {
		t.Fatal("tampered payload must not verify")
	}
	for _, bad := range []string{"", "garbage", "a.b.c"} {
		if _, ok := svc.Verify(bad); ok {
			t.Fatalf("%q must not verify", bad)
		}
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, &now)
	claims := Claims{
		InstituteID: "inst-1",
		Target:      AudienceInstitute,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, ok := svc.Verify(token); ok {
		t.Fatal("HS512 token must not verify")
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, ok := svc.Verify(none); ok {
		t.Fatal("unsigned token must not verify")
	}
}

func TestVerifyRejectsMalformedPayload(t *testing.T) {
	now := time.Now()
	svc := newTestTokens(t, &now)
	sign := func(c Claims) string {
		c.RegisteredClaims = jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}
	cases := map[string]Claims{
		"platform without roles":  {InstituteID: tenancy.PlatformSentinel, Target: AudiencePlatform, RegisteredClaims: jwt.RegisteredClaims{Subject: "op"}},
		"platform with tenant":    {InstituteID: "inst-1", Roles: []string{RoleSuperAdmin}, Target: AudiencePlatform, RegisteredClaims: jwt.RegisteredClaims{Subject: "op"}},
		"institute with sentinel": {InstituteID: tenancy.PlatformSentinel, Target: AudienceInstitute, RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}},
		"unknown target":          {InstituteID: "inst-1", Target: "student", RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}},
		"missing subject":         {InstituteID: "inst-1", Target: AudienceInstitute},
	}
	for name, c := range cases {
		if _, ok := svc.Verify(sign(c)); ok {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}
