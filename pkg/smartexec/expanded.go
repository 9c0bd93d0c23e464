package smartexec

import "github.com/droidgram/droidgram/pkg/sandbox"

// expandedEntries widen the allowlist at full autonomy. The absolute
// blocklist and destructive-pattern checks still apply on top.
var expandedEntries = []string{
	"git",
	"npm", "npx", "pnpm", "yarn", "bun", "node", "tsc", "tsx",
	"python", "python3", "pip", "pip3", "uv", "pytest",
	"go", "cargo", "rustc", "make", "cmake",
	"docker", "docker-compose", "kubectl",
	"vercel", "gh",
	"sed", "awk", "sort", "uniq", "cut", "tr", "xargs",
	"tar", "gzip", "gunzip", "zip", "unzip",
	"curl", "wget", "jq", "yq",
	"cp", "mv", "mkdir", "touch", "chmod", "ln",
	"ps", "env", "date", "du", "df", "diff",
}

func expandedAllowlist() sandbox.Allowlist {
	return sandbox.ParseAllowlist(expandedEntries)
}
