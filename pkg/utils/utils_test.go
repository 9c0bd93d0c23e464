package utils

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 50, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"this line is too long", 9, "this line..."},
		{"héllo wörld", 5, "héllo..."},
		{"anything", 0, ""},
		{"", 10, ""},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.n); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestIsAudioFile(t *testing.T) {
	cases := []struct {
		filename    string
		contentType string
		want        bool
	}{
		{"voice.oga", "", true},
		{"clip.OGG", "", true},
		{"song.mp3", "application/octet-stream", true},
		{"note.opus", "", true},
		{"whatever.bin", "audio/ogg", true},
		{"readme.txt", "text/plain", false},
		{"photo.jpg", "image/jpeg", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := IsAudioFile(tc.filename, tc.contentType); got != tc.want {
			t.Errorf("IsAudioFile(%q, %q) = %v, want %v", tc.filename, tc.contentType, got, tc.want)
		}
	}
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("https://api.telegram.org/file/bot123456:AAH-real-token/voice/file_7.oga")
	if strings.Contains(got, "AAH-real-token") {
		t.Fatalf("token leaked into %q", got)
	}
	want := "https://api.telegram.org/file/bot<redacted>/voice/file_7.oga"
	if got != want {
		t.Fatalf("RedactURL = %q, want %q", got, want)
	}

	plain := "https://cdn.discordapp.com/attachments/1/2/clip.ogg"
	if got := RedactURL(plain); got != plain {
		t.Fatalf("URL without token changed: %q", got)
	}
}

func TestDownloadFileSavesBody(t *testing.T) {
	body := []byte("OggS fake voice data")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	path := DownloadFile(srv.URL+"/media/file_1.oga", "voice message.oga", DownloadOptions{
		LoggerPrefix: "test",
	})
	if path == "" {
		t.Fatalf("DownloadFile returned empty path")
	}
	defer os.Remove(path)

	if got := filepath.Ext(path); got != ".oga" {
		t.Fatalf("downloaded file ext = %q, want .oga", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != string(body) {
		t.Fatalf("downloaded content = %q, want %q", data, body)
	}
	if !strings.Contains(filepath.Base(path), "droidgram-") {
		t.Fatalf("temp file should carry droidgram prefix, got %s", path)
	}
}

func TestDownloadFileRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if path := DownloadFile(srv.URL+"/missing.ogg", "missing.ogg", DownloadOptions{}); path != "" {
		os.Remove(path)
		t.Fatalf("expected empty path for 404, got %q", path)
	}
}

func TestDownloadFileEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	path := DownloadFile(srv.URL+"/big.wav", "big.wav", DownloadOptions{MaxBytes: 1024})
	if path != "" {
		os.Remove(path)
		t.Fatalf("expected empty path for oversized download, got %q", path)
	}
}
