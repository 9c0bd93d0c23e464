// Package utils holds small helpers shared by the channel adapters:
// log-preview truncation, audio sniffing for voice notes, and bounded
// media downloads into the system temp dir.
package utils

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/droidgram/droidgram/pkg/logger"
	"github.com/droidgram/droidgram/pkg/transport"
)

const (
	defaultDownloadTimeout = 60 * time.Second

	// Voice notes are small; anything past this is not something we
	// should be pulling onto the host.
	defaultDownloadMaxBytes = 50 << 20
)

// Truncate shortens s to at most n runes, appending "..." when it cut
// anything. Safe on multi-byte text.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
}

// IsAudioFile reports whether an attachment looks like audio, by MIME
// type when the channel supplies one, else by file extension.
func IsAudioFile(filename, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "audio/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return audioExtensions[ext]
}

var botTokenPathRe = regexp.MustCompile(`(/bot)[^/]+`)

// RedactURL masks credential-bearing path segments before logging.
// Telegram file URLs embed the bot token.
func RedactURL(url string) string {
	return botTokenPathRe.ReplaceAllString(url, "$1<redacted>")
}

// DownloadOptions tunes DownloadFile. The zero value is usable.
type DownloadOptions struct {
	// LoggerPrefix is the component tag for download log lines.
	LoggerPrefix string
	// Timeout bounds the whole request. Zero means 60s.
	Timeout time.Duration
	// MaxBytes caps the response size. Zero means 50MB.
	MaxBytes int64
}

// DownloadFile fetches url into a temp file named after filename's
// extension and returns the local path, or "" on any failure. Callers
// own cleanup of the returned file.
func DownloadFile(url, filename string, opts DownloadOptions) string {
	prefix := opts.LoggerPrefix
	if prefix == "" {
		prefix = "utils"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultDownloadMaxBytes
	}

	client := transport.NewClientWithTimeout(timeout)
	resp, err := client.Get(url)
	if err != nil {
		logger.WarnCF(prefix, "Download failed", map[string]interface{}{
			"url":   RedactURL(url),
			"error": err.Error(),
		})
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		logger.WarnCF(prefix, "Download failed", map[string]interface{}{
			"url":    RedactURL(url),
			"status": resp.StatusCode,
		})
		return ""
	}

	ext := filepath.Ext(filepath.Base(filename))
	tmp, err := os.CreateTemp("", "droidgram-*"+ext)
	if err != nil {
		logger.WarnCF(prefix, "Creating temp file failed", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	written, err := io.Copy(tmp, io.LimitReader(resp.Body, maxBytes+1))
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		if err == nil {
			err = closeErr
		}
		logger.WarnCF(prefix, "Saving download failed", map[string]interface{}{
			"url":   RedactURL(url),
			"error": err.Error(),
		})
		os.Remove(tmp.Name())
		return ""
	}
	if written > maxBytes {
		logger.WarnCF(prefix, "Download exceeds size cap, discarding", map[string]interface{}{
			"url":       RedactURL(url),
			"max_bytes": maxBytes,
		})
		os.Remove(tmp.Name())
		return ""
	}

	logger.DebugCF(prefix, "Downloaded file", map[string]interface{}{
		"url":   url,
		"path":  tmp.Name(),
		"bytes": written,
	})
	return tmp.Name()
}
