package deploy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/droidgram/droidgram/pkg/transport"
)

const (
	verifyAttempts = 3
	verifyDelay    = 2 * time.Second
	verifyTimeout  = 15 * time.Second

	chromeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Verifier probes a freshly deployed URL. It uses the Chrome-fingerprint
// HTTP/2 client because preview URLs often sit behind bot protection that
// answers Go's default TLS fingerprint with a challenge page, which would
// read as a false failure here.
type Verifier struct {
	client   *http.Client
	attempts int
	delay    time.Duration
}

func NewVerifier() *Verifier {
	return &Verifier{
		client:   transport.NewH2Client(),
		attempts: verifyAttempts,
		delay:    verifyDelay,
	}
}

// Verify GETs rawURL until it answers, retrying to ride out DNS and edge
// propagation right after a deploy.
func (v *Verifier) Verify(ctx context.Context, rawURL string) error {
	var lastErr error
	for i := 0; i < v.attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(v.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = v.probe(ctx, rawURL)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (v *Verifier) probe(ctx context.Context, rawURL string) error {
	reqCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", chromeUserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		// Deployment protection answers 401/403 to outside visitors; the
		// deployment itself is serving.
		return nil
	default:
		return fmt.Errorf("probe %s: status %d", rawURL, resp.StatusCode)
	}
}
