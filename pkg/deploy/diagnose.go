package deploy

import "regexp"

// Category classifies a deployment failure.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryDependency Category = "dependency"
	CategoryBuild      Category = "build"
	CategoryRateLimit  Category = "rate_limit"
	CategoryNetwork    Category = "network"
	CategoryFramework  Category = "framework"
	CategoryConfig     Category = "config"
	CategoryUnknown    Category = "unknown"
)

// DiagnosisResult is the outcome of matching failure output against the
// rule table.
type DiagnosisResult struct {
	Category    Category `json:"category"`
	Problem     string   `json:"problem"`
	Solution    string   `json:"solution"`
	AutoFixable bool     `json:"auto_fixable"`
	Confidence  int      `json:"confidence"`
}

type diagnosisRule struct {
	re          *regexp.Regexp
	category    Category
	problem     string
	solution    string
	autoFixable bool
	confidence  int
}

// diagnosisRules is evaluated top to bottom against the concatenated
// stderr+stdout of a failed deployment; the first matching rule wins, with
// no scoring or merging. Order matters: auth outranks everything (its fix
// needs a human), and dependency errors must classify before generic build
// failures because "Cannot find module" usually surfaces inside build logs.
var diagnosisRules = []diagnosisRule{
	{
		re:         regexp.MustCompile(`(?i)\b401\b|unauthorized|invalid token|forbidden|authentication (failed|required)|not authorized`),
		category:   CategoryAuth,
		problem:    "Vercel rejected the credentials (expired or missing token)",
		solution:   "Run `vercel login` on the host or set a fresh VERCEL_TOKEN, then deploy again",
		confidence: 95,
	},
	{
		re:          regexp.MustCompile(`(?i)cannot find module|module not found|err_module_not_found|missing dependency`),
		category:    CategoryDependency,
		problem:     "A required package is missing from node_modules",
		solution:    "Install dependencies with the project's package manager",
		autoFixable: true,
		confidence:  90,
	},
	{
		re:          regexp.MustCompile(`(?i)rate limit|too many requests|\b429\b`),
		category:    CategoryRateLimit,
		problem:     "Vercel is rate-limiting this account",
		solution:    "Wait 30 seconds, then retry the deployment",
		autoFixable: true,
		confidence:  85,
	},
	{
		re:          regexp.MustCompile(`(?i)missing script:?\s*"?build"?|npm err! missing script`),
		category:    CategoryBuild,
		problem:     "package.json has no build script",
		solution:    "Add a \"build\" script to package.json",
		autoFixable: false,
		confidence:  85,
	},
	{
		re:          regexp.MustCompile(`(?i)build failed|command .* exited with|compil(e|ation) error|tsc exited|webpack.*error`),
		category:    CategoryBuild,
		problem:     "The project build step failed",
		solution:    "Run the project's build script and fix the reported errors",
		autoFixable: true,
		confidence:  75,
	},
	{
		re:          regexp.MustCompile(`(?i)no framework detected|couldn'?t find a valid build configuration|unable to detect.*framework|no output directory`),
		category:    CategoryFramework,
		problem:     "Vercel could not detect the project framework",
		solution:    "Write a minimal vercel.json naming the framework",
		autoFixable: true,
		confidence:  80,
	},
	{
		re:          regexp.MustCompile(`(?i)(invalid|error parsing|could not parse) .*vercel\.json|invalid configuration|schema validation`),
		category:    CategoryConfig,
		problem:     "vercel.json is invalid",
		solution:    "Rewrite vercel.json with a minimal valid configuration",
		autoFixable: true,
		confidence:  80,
	},
	{
		re:          regexp.MustCompile(`(?i)econnrefused|econnreset|etimedout|enotfound|eai_again|socket hang up|network (error|failure)|getaddrinfo`),
		category:    CategoryNetwork,
		problem:     "Network error while talking to Vercel",
		solution:    "Retry the deployment",
		autoFixable: true,
		confidence:  70,
	},
}

// Diagnose classifies failure output. No match yields CategoryUnknown,
// never auto-fixable.
func Diagnose(output string) DiagnosisResult {
	for _, rule := range diagnosisRules {
		if rule.re.MatchString(output) {
			return DiagnosisResult{
				Category:    rule.category,
				Problem:     rule.problem,
				Solution:    rule.solution,
				AutoFixable: rule.autoFixable,
				Confidence:  rule.confidence,
			}
		}
	}
	return DiagnosisResult{
		Category: CategoryUnknown,
		Problem:  "Deployment failed for an unrecognized reason",
		Solution: "Inspect the deployment logs (`vercel logs`) or the inspector URL",
	}
}
