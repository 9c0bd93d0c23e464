package droid

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultBinaryName is looked up on PATH when no binary is configured.
const DefaultBinaryName = "droid"

// Replaced in tests.
var (
	lookPath   = exec.LookPath
	statBinary = os.Stat
)

// ResolveBinary locates the droid executable. A configured value containing
// a path separator is checked as-is (after ~ expansion); a bare name goes
// through PATH. With no configuration the PATH lookup is tried first, then
// a fixed candidate list covering Homebrew and common install prefixes.
func ResolveBinary(configured string) (string, error) {
	if configured != "" {
		if strings.ContainsAny(configured, `/\`) {
			if p := expandHome(configured); isExecutable(p) {
				return p, nil
			}
			return "", &RunError{Kind: ErrorBinaryNotFound, Err: exec.ErrNotFound, Detail: configured}
		}
		if p, err := lookPath(configured); err == nil {
			return p, nil
		}
		return "", &RunError{Kind: ErrorBinaryNotFound, Err: exec.ErrNotFound, Detail: configured}
	}

	if p, err := lookPath(DefaultBinaryName); err == nil {
		return p, nil
	}
	for _, cand := range binaryCandidates() {
		if isExecutable(cand) {
			return cand, nil
		}
	}
	return "", &RunError{Kind: ErrorBinaryNotFound, Err: exec.ErrNotFound, Detail: DefaultBinaryName}
}

func binaryCandidates() []string {
	if runtime.GOOS == "windows" {
		var out []string
		if d := os.Getenv("LOCALAPPDATA"); d != "" {
			out = append(out, filepath.Join(d, "Programs", "droid", "droid.exe"))
		}
		if d := os.Getenv("ProgramFiles"); d != "" {
			out = append(out, filepath.Join(d, "droid", "droid.exe"))
		}
		return out
	}
	out := []string{
		"/opt/homebrew/bin/droid",
		"/usr/local/bin/droid",
		"/usr/bin/droid",
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".local", "bin", "droid"))
	}
	return out
}

func isExecutable(path string) bool {
	info, err := statBinary(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
