package jwt

import (
	"reflect"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

const (
	testAccessSecret  = "access-secret-access-secret-0123456789"
	testRefreshSecret = "refresh-secret-refresh-secret-0123456789"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		AccessSecret:  []byte(testAccessSecret),
		RefreshSecret: []byte(testRefreshSecret),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "lscauth",
		Audience:      "lsc-api",
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestAccessRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	in := AccessPayload{
		Subject:      "user-1",
		Email:        "alice@example.com",
		PlatformRole: "USER",
		Organizations: []Membership{
			{OrganizationID: "org-1", Role: "OWNER"},
			{OrganizationID: "org-2", Role: "MEMBER"},
		},
		Type: "refresh",
	}

	token, err := c.SignAccess(in)
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}

	got := c.VerifyAccess(token)
	if got == nil {
		t.Fatal("expected access token to verify")
	}

	want := in
	want.Type = TypeAccess
	if !reflect.DeepEqual(*got, want) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", *got, want)
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	issued, err := c.SignRefresh("user-1")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	if issued.JTI == "" {
		t.Fatal("expected jti")
	}
	if time.Until(issued.ExpiresAt) < 6*24*time.Hour {
		t.Fatalf("unexpected refresh expiry %v", issued.ExpiresAt)
	}

	got := c.VerifyRefresh(issued.Token)
	if got == nil {
		t.Fatal("expected refresh token to verify")
	}
	want := RefreshPayload{Subject: "user-1", JTI: issued.JTI, Type: TypeRefresh}
	if *got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", *got, want)
	}

	again, err := c.SignRefresh("user-1")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	if again.JTI == issued.JTI || again.Token == issued.Token {
		t.Fatal("expected fresh jti per refresh token")
	}
}

func TestTokenConfusionRejected(t *testing.T) {
	c := newTestCodec(t)

	access, err := c.SignAccess(AccessPayload{Subject: "user-1"})
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}
	refresh, err := c.SignRefresh("user-1")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}

	if c.VerifyAccess(refresh.Token) != nil {
		t.Fatal("refresh token must not verify as access")
	}
	if c.VerifyRefresh(access) != nil {
		t.Fatal("access token must not verify as refresh")
	}
}

func TestTypeClaimCheckedEvenWithMatchingSecret(t *testing.T) {
	c := newTestCodec(t)

	// A token signed with the access secret but claiming to be a refresh token.
	claims := refreshClaims{
		Type: TypeRefresh,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "jti-1",
			Issuer:    "lscauth",
			Audience:  gjwt.ClaimStrings{"lsc-api"},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if c.VerifyAccess(token) != nil {
		t.Fatal("expected type mismatch to be rejected")
	}
}

func TestVerifyRejectsExpiredIssuerAudienceAndAlgorithm(t *testing.T) {
	c := newTestCodec(t)

	sign := func(method gjwt.SigningMethod, key interface{}, mutate func(*accessClaims)) string {
		t.Helper()
		claims := accessClaims{
			Type: TypeAccess,
			RegisteredClaims: gjwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    "lscauth",
				Audience:  gjwt.ClaimStrings{"lsc-api"},
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		mutate(&claims)
		token, err := gjwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}

	cases := map[string]string{
		"expired": sign(gjwt.SigningMethodHS256, []byte(testAccessSecret), func(c *accessClaims) {
			c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-time.Minute))
		}),
		"issuer": sign(gjwt.SigningMethodHS256, []byte(testAccessSecret), func(c *accessClaims) {
			c.Issuer = "someone-else"
		}),
		"audience": sign(gjwt.SigningMethodHS256, []byte(testAccessSecret), func(c *accessClaims) {
			c.Audience = gjwt.ClaimStrings{"other-api"}
		}),
		"algorithm": sign(gjwt.SigningMethodHS512, []byte(testAccessSecret), func(*accessClaims) {}),
		"secret": sign(gjwt.SigningMethodHS256, []byte(testRefreshSecret), func(*accessClaims) {}),
		"no-expiry": sign(gjwt.SigningMethodHS256, []byte(testAccessSecret), func(c *accessClaims) {
			c.ExpiresAt = nil
		}),
	}

	for name, token := range cases {
		if c.VerifyAccess(token) != nil {
			t.Fatalf("%s: expected token to be rejected", name)
		}
	}

	if c.VerifyAccess("not-a-token") != nil {
		t.Fatal("expected garbage to be rejected")
	}
	if c.VerifyAccess("") != nil {
		t.Fatal("expected empty token to be rejected")
	}
}

func TestExpiryUsesConfiguredTTL(t *testing.T) {
	c := newTestCodec(t)
	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return frozen }

	token, err := c.SignAccess(AccessPayload{Subject: "user-1"})
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}

	c.now = func() time.Time { return frozen.Add(14 * time.Minute) }
	if c.VerifyAccess(token) == nil {
		t.Fatal("expected token to be valid before expiry")
	}

	c.now = func() time.Time { return frozen.Add(16 * time.Minute) }
	if c.VerifyAccess(token) != nil {
		t.Fatal("expected token to be expired after 15 minutes")
	}
}

func TestNewCodecValidation(t *testing.T) {
	short := []byte("too-short")
	good := []byte(strings.Repeat("a", MinSecretLength))
	other := []byte(strings.Repeat("b", MinSecretLength))

	if _, err := NewCodec(Config{AccessSecret: short, RefreshSecret: other}); err == nil {
		t.Fatal("expected short access secret to be rejected")
	}
	if _, err := NewCodec(Config{AccessSecret: good, RefreshSecret: short}); err == nil {
		t.Fatal("expected short refresh secret to be rejected")
	}
	if _, err := NewCodec(Config{AccessSecret: good, RefreshSecret: good}); err == nil {
		t.Fatal("expected identical secrets to be rejected")
	}
	if _, err := NewCodec(Config{AccessSecret: good, RefreshSecret: other, AccessTTL: -time.Second}); err == nil {
		t.Fatal("expected negative TTL to be rejected")
	}

	c, err := NewCodec(Config{AccessSecret: good, RefreshSecret: other})
	if err != nil {
		t.Fatalf("expected defaults to be accepted: %v", err)
	}
	if c.AccessTTL() != DefaultAccessTTL || c.RefreshTTL() != DefaultRefreshTTL {
		t.Fatalf("unexpected default TTLs %v / %v", c.AccessTTL(), c.RefreshTTL())
	}
}
