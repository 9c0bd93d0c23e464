package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/droidgram/droidgram/pkg/transport"
)

// Public client ID of the GitHub CLI OAuth app. Device-flow apps have no
// secret; override with DROIDGRAM_GITHUB_CLIENT_ID to use your own app.
const defaultGitHubClientID = "178c6fc778ccc68e1d6a"

// GitHubClientIDEnv overrides the OAuth app used for the device flow.
const GitHubClientIDEnv = "DROIDGRAM_GITHUB_CLIENT_ID"

// Replaced in tests.
var (
	githubOAuthConfig = GitHubOAuthConfig
	githubAPIBase     = "https://api.github.com"
)

// GitHubOAuthConfig builds the device-flow config for GitHub.
func GitHubOAuthConfig() *oauth2.Config {
	clientID := os.Getenv(GitHubClientIDEnv)
	if clientID == "" {
		clientID = defaultGitHubClientID
	}

	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   []string{"repo", "read:user"},
		Endpoint: oauth2.Endpoint{
			AuthURL:       "https://github.com/login/oauth/authorize",
			TokenURL:      "https://github.com/login/oauth/access_token",
			DeviceAuthURL: "https://github.com/login/device/code",
		},
	}
}

// LoginGitHubDevice runs the OAuth device-code grant: prints the
// verification URL and one-time code, then polls until the user approves
// in a browser. Works headless, which is the normal case on a VPS.
func LoginGitHubDevice(ctx context.Context) (*AuthCredential, error) {
	cfg := githubOAuthConfig()

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}

	fmt.Printf("\nTo authenticate, open this URL in your browser:\n\n  %s\n\nThen enter this code: %s\n\nWaiting for authorization...\n",
		da.VerificationURI, da.UserCode)

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}

	cred := &AuthCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Provider:     ProviderGitHub,
		AuthMethod:   "oauth",
	}
	if login := fetchGitHubLogin(ctx, tok.AccessToken); login != "" {
		cred.AccountID = login
	}
	return cred, nil
}

// fetchGitHubLogin resolves the authenticated username for display in
// `auth status`. Failures are not fatal; the credential works without it.
func fetchGitHubLogin(ctx context.Context, token string) string {
	req, err := http.NewRequestWithContext(ctx, "GET", githubAPIBase+"/user", nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	client := transport.NewClientWithTimeout(15 * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ""
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return ""
	}
	return user.Login
}
