package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/droidgram/droidgram/pkg/auth"
	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/deploy"
	"github.com/droidgram/droidgram/pkg/logger"
)

type deployCmdOptions struct {
	Dir        string
	Prod       bool
	Debug      bool
	MaxRetries int
	Scope      string
	Regions    []string
	VerifyURL  bool
}

func deployCmd() {
	opts, showHelp, err := parseDeployOptions(os.Args[2:])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		deployHelp()
		os.Exit(2)
	}
	if showHelp {
		deployHelp()
		return
	}
	if opts.Debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyDeployDefaults(&opts, cfg.Deploy)

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		fmt.Printf("Error resolving directory: %v\n", err)
		os.Exit(1)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		fmt.Printf("✗ Not a directory: %s\n", dir)
		os.Exit(1)
	}

	client, err := deploy.NewClient("")
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		fmt.Println("  Install it with: npm install -g vercel")
		os.Exit(1)
	}

	token := auth.Token(auth.ProviderVercel)
	if token == "" {
		fmt.Printf("⚠ No Vercel token found; relying on the vercel CLI's own login.\n")
		fmt.Printf("  To store one: %s auth login --provider vercel (or set VERCEL_TOKEN)\n\n", invokedCLIName())
	}

	healer := deploy.NewHealer(client, deploy.NewFixer(dir), opts.MaxRetries)
	healer.SetProgress(func(msg string) {
		fmt.Printf("  %s\n", msg)
	})
	if opts.VerifyURL {
		healer.SetVerifier(deploy.NewVerifier())
	}

	target := "preview"
	if opts.Prod {
		target = "production"
	}
	fmt.Printf("🚀 Deploying %s to Vercel (%s)\n", dir, target)

	outcome, err := healer.Run(context.Background(), dir, deploy.Options{
		Prod:    opts.Prod,
		Debug:   opts.Debug,
		Scope:   opts.Scope,
		Regions: opts.Regions,
		Token:   token,
	})
	if err != nil {
		fmt.Printf("\n✗ Deploy aborted: %v\n", err)
		os.Exit(1)
	}

	printDeployOutcome(outcome)
	if !outcome.Success {
		os.Exit(1)
	}
}

func deployHelp() {
	commandName := invokedCLIName()
	fmt.Println("\nDeploy:")
	fmt.Printf("  %s deploy [dir] runs a self-healing Vercel deployment: deploy, diagnose\n", commandName)
	fmt.Println("  failures, apply safe fixes, and retry up to a bounded number of times.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --prod                  Deploy to production instead of preview")
	fmt.Println("  --dir <path>            Project directory (default: current directory)")
	fmt.Println("  --max-retries <n>       Retry budget after the first attempt")
	fmt.Println("  --scope <team>          Vercel team/scope slug")
	fmt.Println("  --regions <a,b>         Comma-separated region list")
	fmt.Println("  --verify-url            Probe the deployment URL after success")
	fmt.Println("  --debug                 Verbose logging")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s deploy\n", commandName)
	fmt.Printf("  %s deploy ./site --prod\n", commandName)
	fmt.Printf("  %s deploy --prod --verify-url --max-retries 3\n", commandName)
}

func parseDeployOptions(args []string) (deployCmdOptions, bool, error) {
	opts := deployCmdOptions{Dir: ".", MaxRetries: -1}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--prod":
			opts.Prod = true
		case "--debug", "-d":
			opts.Debug = true
		case "--verify-url":
			opts.VerifyURL = true
		case "--dir":
			if i+1 >= len(args) {
				return opts, false, fmt.Errorf("--dir requires a value")
			}
			opts.Dir = args[i+1]
			i++
		case "--max-retries":
			if i+1 >= len(args) {
				return opts, false, fmt.Errorf("--max-retries requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 0 {
				return opts, false, fmt.Errorf("invalid --max-retries value: %s", args[i+1])
			}
			opts.MaxRetries = n
			i++
		case "--scope":
			if i+1 >= len(args) {
				return opts, false, fmt.Errorf("--scope requires a value")
			}
			opts.Scope = args[i+1]
			i++
		case "--regions":
			if i+1 >= len(args) {
				return opts, false, fmt.Errorf("--regions requires a value")
			}
			opts.Regions = parseCSV(args[i+1])
			i++
		case "help", "--help", "-h":
			return opts, true, nil
		default:
			if strings.HasPrefix(args[i], "-") {
				return opts, false, fmt.Errorf("unknown option: %s", args[i])
			}
			opts.Dir = args[i]
		}
	}
	return opts, false, nil
}

// applyDeployDefaults fills unset flags from config. Flags always win.
func applyDeployDefaults(opts *deployCmdOptions, dc config.DeployConfig) {
	if !opts.Prod {
		opts.Prod = dc.Prod
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = dc.MaxRetries
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = deploy.DefaultMaxRetries
	}
	if opts.Scope == "" {
		opts.Scope = dc.Scope
	}
	if len(opts.Regions) == 0 {
		opts.Regions = dc.Regions
	}
	if !opts.VerifyURL {
		opts.VerifyURL = dc.VerifyURL
	}
}

func printDeployOutcome(outcome deploy.Outcome) {
	if outcome.Success {
		fmt.Printf("\n✓ Deployed: %s\n", outcome.URL)
		if outcome.InspectorURL != "" {
			fmt.Printf("  Inspector: %s\n", outcome.InspectorURL)
		}
		if outcome.Verified {
			fmt.Println("  URL answered a health check")
		}
		if len(outcome.FixesApplied) > 0 {
			fmt.Printf("  Fixes applied: %s\n", strings.Join(outcome.FixesApplied, ", "))
		}
		if outcome.RetryCount > 0 {
			fmt.Printf("  Attempts: %d\n", outcome.Attempts)
		}
		if outcome.Message != "" {
			fmt.Println(outcome.Message)
		}
		return
	}

	fmt.Printf("\n✗ Deploy failed after %d attempt(s)\n", outcome.Attempts)
	if outcome.Diagnosis != nil {
		fmt.Printf("  Problem: %s\n", outcome.Diagnosis.Problem)
		fmt.Printf("  Suggestion: %s\n", outcome.Diagnosis.Solution)
	}
	if len(outcome.FixesApplied) > 0 {
		fmt.Printf("  Fixes tried: %s\n", strings.Join(outcome.FixesApplied, ", "))
	}
	if outcome.Message != "" {
		fmt.Println(outcome.Message)
	}
}
