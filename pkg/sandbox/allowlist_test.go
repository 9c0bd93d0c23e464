package sandbox

import (
	"testing"
)

func TestParseAllowlist(t *testing.T) {
	al := ParseAllowlist([]string{"git status", "git log", "npm", "ls", ""})

	if !al.Allows("git", "status") || !al.Allows("git", "log") {
		t.Error("listed git subcommands should be allowed")
	}
	if al.Allows("git", "push") {
		t.Error("unlisted git subcommand should be blocked")
	}
	if !al.Allows("npm", "anything") {
		t.Error("bare binary entry should allow all subcommands")
	}
	if al.Allows("python", "") {
		t.Error("unlisted binary should be blocked")
	}
}

func TestParseAllowlist_BareEntryWins(t *testing.T) {
	// A bare binary entry lifts subcommand restrictions regardless of order.
	al := ParseAllowlist([]string{"git status", "git"})
	if !al.Allows("git", "push") {
		t.Error("bare entry after restricted entry should allow everything")
	}

	al = ParseAllowlist([]string{"git", "git status"})
	if !al.Allows("git", "push") {
		t.Error("restricted entry after bare entry should not restrict")
	}
}

func TestAllowlist_FlagsPassSubcommandCheck(t *testing.T) {
	al := ParseAllowlist([]string{"git status"})
	if !al.Allows("git", "--version") {
		t.Error("flag arguments should not count as subcommands")
	}
	if !al.Allows("git", "") {
		t.Error("bare binary invocation should pass")
	}
}

func TestAllowlist_Basename(t *testing.T) {
	al := ParseAllowlist([]string{"node"})
	if !al.Allows("/usr/local/bin/node", "script.js") {
		t.Error("path basename should resolve")
	}
}

func TestAllowlist_CaseInsensitive(t *testing.T) {
	al := ParseAllowlist([]string{"NPM Install"})
	if !al.Allows("npm", "install") {
		t.Error("entries should match case-insensitively")
	}
	if !al.Allows("NPM", "INSTALL") {
		t.Error("lookups should match case-insensitively")
	}
}

func TestAllowlist_Merge(t *testing.T) {
	base := ParseAllowlist([]string{"git status"})
	extra := ParseAllowlist([]string{"git push", "vercel"})

	merged := base.Merge(extra)
	if !merged.Allows("git", "status") || !merged.Allows("git", "push") {
		t.Error("merge should union subcommands")
	}
	if !merged.Allows("vercel", "deploy") {
		t.Error("merge should add new binaries")
	}
	if merged.Allows("git", "rebase") {
		t.Error("merge should not widen beyond the union")
	}

	// Merging a bare entry lifts restrictions.
	lifted := base.Merge(ParseAllowlist([]string{"git"}))
	if !lifted.Allows("git", "anything") {
		t.Error("bare entry should lift restrictions in merge")
	}
}

func TestAllowlist_Binaries(t *testing.T) {
	al := ParseAllowlist([]string{"zsh", "awk", "npm install"})
	got := al.Binaries()
	want := []string{"awk", "npm", "zsh"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("binaries[%d] = %q, want %q (sorted)", i, got[i], want[i])
		}
	}
}
