package auth

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/droidgram/droidgram/pkg/logger"
)

var githubTokenPrefixes = []string{"ghp_", "gho_", "ghu_", "ghs_", "github_pat_"}

// LoginPasteToken reads a token from r (first line wins) and wraps it in a
// credential. Used for Vercel tokens and GitHub PATs created in the web UI.
func LoginPasteToken(provider string, r io.Reader) (*AuthCredential, error) {
	fmt.Printf("Paste your %s token: ", provider)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading token: %w", err)
	}

	token := strings.TrimSpace(line)
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return nil, fmt.Errorf("no token provided")
	}

	if provider == ProviderGitHub && !hasGitHubPrefix(token) {
		logger.WarnC("auth", "Token does not look like a GitHub token; saving anyway")
	}

	return &AuthCredential{
		AccessToken: token,
		Provider:    provider,
		AuthMethod:  "token",
	}, nil
}

func hasGitHubPrefix(token string) bool {
	for _, p := range githubTokenPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}
