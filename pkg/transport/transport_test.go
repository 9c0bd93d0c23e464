package transport

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClientWithTimeoutSetsDeadline(t *testing.T) {
	origGetenv := getenv
	getenv = func(string) string { return "" }
	defer func() { getenv = origGetenv }()

	client := NewClientWithTimeout(15 * time.Second)
	if client.Timeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatal("expected *http.Transport")
	}
	if transport.Proxy != nil {
		t.Error("expected no proxy without HTTPS_PROXY")
	}
}

func TestNewClientWithTimeoutHonorsProxyEnv(t *testing.T) {
	origGetenv := getenv
	getenv = func(key string) string {
		if key == "HTTPS_PROXY" {
			return "http://proxy.internal:3128"
		}
		return ""
	}
	defer func() { getenv = origGetenv }()

	client := NewClientWithTimeout(5 * time.Second)
	transport := client.Transport.(*http.Transport)
	if transport.Proxy == nil {
		t.Fatal("expected proxy to be configured from HTTPS_PROXY")
	}
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	proxyURL, err := transport.Proxy(req)
	if err != nil {
		t.Fatalf("proxy func: %v", err)
	}
	if proxyURL == nil || proxyURL.Host != "proxy.internal:3128" {
		t.Fatalf("unexpected proxy URL: %v", proxyURL)
	}
}

func TestProxyFromEnvIgnoresMalformed(t *testing.T) {
	origGetenv := getenv
	getenv = func(key string) string {
		if key == "HTTPS_PROXY" {
			return "not a url"
		}
		return ""
	}
	defer func() { getenv = origGetenv }()

	if proxy := proxyFromEnv(); proxy != nil {
		t.Fatalf("expected nil for malformed proxy value, got %v", proxy)
	}
}

func TestNewTransportForcesHTTP1(t *testing.T) {
	transport := NewTransport()
	if transport.ForceAttemptHTTP2 {
		t.Error("expected HTTP/2 to be disabled on the h1 transport")
	}
	if transport.DialTLSContext == nil {
		t.Error("expected custom TLS dialer")
	}
}
