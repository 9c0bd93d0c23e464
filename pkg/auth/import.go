package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	keyAccessToken = "access_token"
	keyRefresh     = "refresh_token"
	keyAccountID   = "account_id"
	keyAuthMethod  = "auth_method"
	keyExpiresAt   = "expires_at"
	keyExpiresIn   = "expires_in"
	keyProvider    = "provider"
)

var credentialAliases = map[string]string{
	"accesstoken":  keyAccessToken,
	"token":        keyAccessToken,
	"refreshtoken": keyRefresh,
	"accountid":    keyAccountID,
	"authmethod":   keyAuthMethod,
	"method":       keyAuthMethod,
	"expiresat":    keyExpiresAt,
	"expiresin":    keyExpiresIn,
	"provider":     keyProvider,
}

// ParseCredentialFile turns a credential JSON blob into an AuthCredential.
// Two shapes are accepted: a direct object written by hand, or a 1Password
// item export (`op item get --format json`) where values hide in a fields
// array or a notesPlain blob. Key names match case- and separator-
// insensitively, so accessToken, access_token and "Access Token" all
// resolve. The first non-empty value wins, direct keys before fields
// before notes.
func ParseCredentialFile(data []byte, provider, defaultMethod string) (*AuthCredential, error) {
	var item map[string]interface{}
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parsing credential JSON: %w", err)
	}

	values := map[string]string{}
	mergeObjectValues(values, item)
	mergeFieldValues(values, item["fields"])
	mergeNotesValues(values, item["notesPlain"])

	if values[keyAccessToken] == "" {
		return nil, fmt.Errorf("access token is required")
	}

	expiresAt, err := parseExpiry(values)
	if err != nil {
		return nil, err
	}

	credProvider := values[keyProvider]
	if credProvider == "" {
		credProvider = strings.TrimSpace(provider)
	}

	method := values[keyAuthMethod]
	if method == "" {
		method = strings.TrimSpace(defaultMethod)
	}
	if method == "" {
		method = "token"
	}

	return &AuthCredential{
		AccessToken:  values[keyAccessToken],
		RefreshToken: values[keyRefresh],
		AccountID:    values[keyAccountID],
		ExpiresAt:    expiresAt,
		Provider:     credProvider,
		AuthMethod:   method,
	}, nil
}

func mergeObjectValues(values map[string]string, obj map[string]interface{}) {
	for k, v := range obj {
		canon := credentialAliases[normalizeKey(k)]
		if canon == "" || values[canon] != "" {
			continue
		}
		if s := valueToString(v); s != "" {
			values[canon] = s
		}
	}
}

func mergeFieldValues(values map[string]string, rawFields interface{}) {
	fields, ok := rawFields.([]interface{})
	if !ok {
		return
	}

	for _, field := range fields {
		m, ok := field.(map[string]interface{})
		if !ok {
			continue
		}
		s := valueToString(m["value"])
		if s == "" {
			continue
		}
		for _, keyName := range []string{"id", "label", "title", "name"} {
			name, _ := m[keyName].(string)
			canon := credentialAliases[normalizeKey(name)]
			if canon != "" && values[canon] == "" {
				values[canon] = s
			}
		}
	}
}

func mergeNotesValues(values map[string]string, rawNotes interface{}) {
	switch notes := rawNotes.(type) {
	case map[string]interface{}:
		mergeObjectValues(values, notes)
	case string:
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(notes)), &obj); err == nil {
			mergeObjectValues(values, obj)
		}
	}
}

func parseExpiry(values map[string]string) (time.Time, error) {
	if raw := values[keyExpiresAt]; raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts, nil
		}
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid expires_at %q: expected RFC3339 or unix seconds", raw)
		}
		return time.Unix(secs, 0).UTC(), nil
	}

	if raw := values[keyExpiresIn]; raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid expires_in %q", raw)
		}
		return time.Now().Add(time.Duration(secs) * time.Second), nil
	}

	return time.Time{}, nil
}

// normalizeKey lowercases and strips everything but letters and digits.
func normalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}
