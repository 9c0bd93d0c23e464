package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Providers with first-class login flows.
const (
	ProviderGitHub = "github"
	ProviderVercel = "vercel"
)

// refreshWindow is how close to expiry a credential is reported as
// needing a refresh.
const refreshWindow = 10 * time.Minute

// AuthCredential is one provider's stored token material.
type AuthCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Provider     string    `json:"provider"`
	AuthMethod   string    `json:"auth_method"`
}

// IsExpired reports whether the credential is past its expiry. Credentials
// without an expiry (personal access tokens) never expire here.
func (c *AuthCredential) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt)
}

// NeedsRefresh reports whether the credential is inside the refresh window.
func (c *AuthCredential) NeedsRefresh() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt.Add(-refreshWindow))
}

// Store is the on-disk credential file, one entry per provider.
type Store struct {
	Credentials map[string]*AuthCredential `json:"credentials"`
}

// Replaced in tests.
var storePath = defaultStorePath

func defaultStorePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".droidgram", "auth.json")
}

// LoadStore reads the credential file. A missing file yields an empty store.
func LoadStore() (*Store, error) {
	store := &Store{Credentials: map[string]*AuthCredential{}}

	data, err := os.ReadFile(storePath())
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to read auth store: %w", err)
	}

	if err := json.Unmarshal(data, store); err != nil {
		return nil, fmt.Errorf("failed to parse auth store: %w", err)
	}
	if store.Credentials == nil {
		store.Credentials = map[string]*AuthCredential{}
	}
	return store, nil
}

// Tokens live here in the clear, so the file is user-only.
func saveStore(store *Store) error {
	path := storePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create auth directory: %w", err)
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal auth store: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write auth store: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename auth store: %w", err)
	}
	return nil
}

// SetCredential stores or replaces the credential for a provider.
func SetCredential(provider string, cred *AuthCredential) error {
	store, err := LoadStore()
	if err != nil {
		return err
	}
	store.Credentials[provider] = cred
	return saveStore(store)
}

// GetCredential returns the stored credential for a provider, or nil when
// none is stored.
func GetCredential(provider string) (*AuthCredential, error) {
	store, err := LoadStore()
	if err != nil {
		return nil, err
	}
	return store.Credentials[provider], nil
}

// DeleteCredential removes one provider's credential.
func DeleteCredential(provider string) error {
	store, err := LoadStore()
	if err != nil {
		return err
	}
	delete(store.Credentials, provider)
	return saveStore(store)
}

// DeleteAllCredentials wipes the store.
func DeleteAllCredentials() error {
	return saveStore(&Store{Credentials: map[string]*AuthCredential{}})
}

var tokenEnvVars = map[string][]string{
	ProviderGitHub: {"GH_TOKEN", "GITHUB_TOKEN"},
	ProviderVercel: {"VERCEL_TOKEN"},
}

// Token resolves the usable token for a provider. Explicit environment
// variables win over the stored credential; expired credentials resolve
// to empty so callers fail with a clear auth error instead of a 401.
func Token(provider string) string {
	for _, name := range tokenEnvVars[provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}

	cred, err := GetCredential(provider)
	if err != nil || cred == nil || cred.IsExpired() {
		return ""
	}
	return cred.AccessToken
}
