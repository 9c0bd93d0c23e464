package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/droidgram/droidgram/pkg/logger"
)

const rateLimitDelay = 30 * time.Second

// Fixer applies the canned remediation for an auto-fixable diagnosis. Each
// fix either succeeds or errors; there is no fallback fix.
type Fixer struct {
	workDir        string
	rateLimitDelay time.Duration
}

func NewFixer(workDir string) *Fixer {
	return &Fixer{workDir: workDir, rateLimitDelay: rateLimitDelay}
}

// Apply runs the remediation for diag's category.
func (f *Fixer) Apply(ctx context.Context, diag DiagnosisResult) error {
	if !diag.AutoFixable {
		return fmt.Errorf("no automatic fix for %s: %s", diag.Category, diag.Solution)
	}
	logger.InfoCF("deploy", "Applying fix", map[string]interface{}{
		"category": string(diag.Category),
	})

	switch diag.Category {
	case CategoryDependency:
		return f.installDependencies(ctx)
	case CategoryBuild:
		return f.runBuildScript(ctx)
	case CategoryFramework, CategoryConfig:
		return f.writeVercelConfig()
	case CategoryRateLimit:
		return f.waitForRateLimit(ctx)
	case CategoryNetwork:
		// Nothing to change; the retry itself is the remediation.
		return nil
	default:
		return fmt.Errorf("no automatic fix for %s", diag.Category)
	}
}

// FixLabel is the short human name for the remediation, used in progress
// notices and the final chat summary.
func FixLabel(category Category) string {
	switch category {
	case CategoryDependency:
		return "install dependencies"
	case CategoryBuild:
		return "run build script"
	case CategoryFramework, CategoryConfig:
		return "write vercel.json"
	case CategoryRateLimit:
		return "wait out rate limit"
	case CategoryNetwork:
		return "retry"
	default:
		return string(category)
	}
}

func (f *Fixer) installDependencies(ctx context.Context) error {
	pm := DetectPackageManager(f.workDir)
	res, err := runCommand(ctx, f.workDir, nil, pm, "install")
	if err != nil {
		return fmt.Errorf("run %s install: %w", pm, err)
	}
	if res.exitCode != 0 {
		return fmt.Errorf("%s install exited %d: %s", pm, res.exitCode, lastChars(res.stderr, 400))
	}
	return nil
}

func (f *Fixer) runBuildScript(ctx context.Context) error {
	pkg, err := readPackageJSON(f.workDir)
	if err != nil {
		return err
	}
	if _, ok := pkg.Scripts["build"]; !ok {
		return fmt.Errorf("package.json has no build script")
	}
	pm := DetectPackageManager(f.workDir)
	res, err := runCommand(ctx, f.workDir, nil, pm, "run", "build")
	if err != nil {
		return fmt.Errorf("run %s run build: %w", pm, err)
	}
	if res.exitCode != 0 {
		return fmt.Errorf("%s run build exited %d: %s", pm, res.exitCode, lastChars(res.stderr, 400))
	}
	return nil
}

func (f *Fixer) writeVercelConfig() error {
	framework := DetectFramework(f.workDir)
	var content string
	if framework != "" {
		content = fmt.Sprintf("{\n  \"framework\": %q\n}\n", framework)
	} else {
		content = "{\n  \"framework\": null\n}\n"
	}
	path := filepath.Join(f.workDir, "vercel.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write vercel.json: %w", err)
	}
	return nil
}

func (f *Fixer) waitForRateLimit(ctx context.Context) error {
	select {
	case <-time.After(f.rateLimitDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DetectPackageManager picks the package manager from the project lockfile.
// No lockfile means npm.
func DetectPackageManager(dir string) string {
	probes := []struct {
		lockfile string
		manager  string
	}{
		{"pnpm-lock.yaml", "pnpm"},
		{"yarn.lock", "yarn"},
		{"bun.lockb", "bun"},
		{"package-lock.json", "npm"},
	}
	for _, probe := range probes {
		if _, err := os.Stat(filepath.Join(dir, probe.lockfile)); err == nil {
			return probe.manager
		}
	}
	return "npm"
}

type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func readPackageJSON(dir string) (packageJSON, error) {
	var pkg packageJSON
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return pkg, fmt.Errorf("read package.json: %w", err)
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkg, fmt.Errorf("parse package.json: %w", err)
	}
	return pkg, nil
}

// DetectFramework maps package.json dependencies to a vercel framework
// slug. Checked most-specific first: a Next.js project also depends on
// react, a SvelteKit project also depends on svelte.
func DetectFramework(dir string) string {
	pkg, err := readPackageJSON(dir)
	if err != nil {
		return ""
	}
	has := func(name string) bool {
		if _, ok := pkg.Dependencies[name]; ok {
			return true
		}
		_, ok := pkg.DevDependencies[name]
		return ok
	}
	switch {
	case has("next"):
		return "nextjs"
	case has("astro"):
		return "astro"
	case has("@sveltejs/kit"):
		return "sveltekit-1"
	case has("react-scripts"):
		return "create-react-app"
	case has("vite"):
		return "vite"
	case has("svelte"):
		return "svelte"
	}
	return ""
}

func lastChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[len(runes)-max:])
}
