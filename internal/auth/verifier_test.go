package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestDevModeTokens(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	p, err := v.Verify("t_acme:operator")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Tenant != "t_acme" || p.Role != "operator" {
		t.Fatalf("principal = %+v", p)
	}
	for _, tok := range []string{"", "noseparator", ":role", "tenant:"} {
		if _, err := v.Verify(tok); err == nil {
			t.Errorf("Verify(%q) succeeded, want error", tok)
		}
	}
}

func signHS256(t *testing.T, secret []byte, payload string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	signed := header + "." + body
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signed))
	return signed + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestHMACMode(t *testing.T) {
	secret := []byte("topsecret")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role"}

	tok := signHS256(t, secret, `{"tenant":"t_acme","role":"admin"}`)
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Tenant != "t_acme" || p.Role != "admin" {
		t.Fatalf("principal = %+v", p)
	}

	// Wrong secret
	bad := signHS256(t, []byte("other"), `{"tenant":"t_acme","role":"admin"}`)
	if _, err := v.Verify(bad); err == nil {
		t.Fatal("token signed with wrong secret should not verify")
	}

	// Missing tenant claim
	noTenant := signHS256(t, secret, `{"role":"admin"}`)
	if _, err := v.Verify(noTenant); err == nil {
		t.Fatal("token without tenant claim should be rejected")
	}

	// Malformed
	if _, err := v.Verify("a.b"); err == nil {
		t.Fatal("malformed token should be rejected")
	}
}

func TestCustomClaimNames(t *testing.T) {
	secret := []byte("s")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "org", RoleClaim: "scope"}
	tok := signHS256(t, secret, `{"org":"t1","scope":"viewer"}`)
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Tenant != "t1" || p.Role != "viewer" {
		t.Fatalf("principal = %+v", p)
	}
}
