package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestGitHubOAuthConfigDefaults(t *testing.T) {
	t.Setenv(GitHubClientIDEnv, "")

	cfg := GitHubOAuthConfig()
	if cfg.ClientID != defaultGitHubClientID {
		t.Errorf("ClientID = %q, want default", cfg.ClientID)
	}
	if cfg.Endpoint.DeviceAuthURL != "https://github.com/login/device/code" {
		t.Errorf("unexpected device auth URL %q", cfg.Endpoint.DeviceAuthURL)
	}
	if len(cfg.Scopes) == 0 || cfg.Scopes[0] != "repo" {
		t.Errorf("expected repo scope, got %v", cfg.Scopes)
	}
}

func TestGitHubOAuthConfigEnvOverride(t *testing.T) {
	t.Setenv(GitHubClientIDEnv, "my-own-app")

	cfg := GitHubOAuthConfig()
	if cfg.ClientID != "my-own-app" {
		t.Errorf("ClientID = %q, want env override", cfg.ClientID)
	}
}

func TestLoginGitHubDeviceFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"device_code":"dev-1","user_code":"ABCD-1234","verification_uri":"https://github.com/login/device","expires_in":900,"interval":1}`)
	})
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"gho_testtoken","token_type":"bearer","scope":"repo"}`)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), "gho_testtoken") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"login":"octocat"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	origCfg := githubOAuthConfig
	githubOAuthConfig = func() *oauth2.Config {
		return &oauth2.Config{
			ClientID: "test-client",
			Endpoint: oauth2.Endpoint{
				TokenURL:      srv.URL + "/login/oauth/access_token",
				DeviceAuthURL: srv.URL + "/login/device/code",
			},
		}
	}
	origAPI := githubAPIBase
	githubAPIBase = srv.URL
	t.Cleanup(func() {
		githubOAuthConfig = origCfg
		githubAPIBase = origAPI
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cred, err := LoginGitHubDevice(ctx)
	if err != nil {
		t.Fatalf("LoginGitHubDevice failed: %v", err)
	}
	if cred.AccessToken != "gho_testtoken" {
		t.Errorf("AccessToken = %q", cred.AccessToken)
	}
	if cred.Provider != ProviderGitHub || cred.AuthMethod != "oauth" {
		t.Errorf("provider/method = %s/%s", cred.Provider, cred.AuthMethod)
	}
	if cred.AccountID != "octocat" {
		t.Errorf("AccountID = %q, want octocat", cred.AccountID)
	}
	if cred.IsExpired() {
		t.Error("token without expiry must not be expired")
	}
}

func TestFetchGitHubLoginUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	origAPI := githubAPIBase
	githubAPIBase = srv.URL
	t.Cleanup(func() { githubAPIBase = origAPI })

	if login := fetchGitHubLogin(context.Background(), "bad"); login != "" {
		t.Errorf("expected empty login on 401, got %q", login)
	}
}
