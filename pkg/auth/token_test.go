package auth

import (
	"strings"
	"testing"
)

func TestLoginPasteToken(t *testing.T) {
	cred, err := LoginPasteToken(ProviderVercel, strings.NewReader("  vc_abc123  \n"))
	if err != nil {
		t.Fatalf("LoginPasteToken failed: %v", err)
	}
	if cred.AccessToken != "vc_abc123" {
		t.Errorf("AccessToken = %q, want trimmed token", cred.AccessToken)
	}
	if cred.Provider != ProviderVercel || cred.AuthMethod != "token" {
		t.Errorf("provider/method = %s/%s", cred.Provider, cred.AuthMethod)
	}
}

func TestLoginPasteTokenStripsBearer(t *testing.T) {
	cred, err := LoginPasteToken(ProviderVercel, strings.NewReader("Bearer vc_xyz\n"))
	if err != nil {
		t.Fatalf("LoginPasteToken failed: %v", err)
	}
	if cred.AccessToken != "vc_xyz" {
		t.Errorf("AccessToken = %q, want Bearer prefix stripped", cred.AccessToken)
	}
}

func TestLoginPasteTokenWithoutNewline(t *testing.T) {
	cred, err := LoginPasteToken(ProviderGitHub, strings.NewReader("ghp_endoffile"))
	if err != nil {
		t.Fatalf("LoginPasteToken failed: %v", err)
	}
	if cred.AccessToken != "ghp_endoffile" {
		t.Errorf("AccessToken = %q", cred.AccessToken)
	}
}

func TestLoginPasteTokenEmpty(t *testing.T) {
	if _, err := LoginPasteToken(ProviderGitHub, strings.NewReader("\n")); err == nil {
		t.Fatal("expected error for empty token")
	}
}
