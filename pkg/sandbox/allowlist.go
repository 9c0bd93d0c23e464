package sandbox

import (
	"path/filepath"
	"sort"
	"strings"
)

// Allowlist maps a binary name to the subcommands it may run. An empty
// subcommand set allows every subcommand of that binary.
type Allowlist map[string]map[string]bool

// ParseAllowlist builds an Allowlist from entries of the form "binary"
// or "binary subcommand". Later entries merge into earlier ones; a bare
// binary entry clears any subcommand restriction for it.
func ParseAllowlist(entries []string) Allowlist {
	al := make(Allowlist, len(entries))
	for _, entry := range entries {
		fields := strings.Fields(strings.ToLower(strings.TrimSpace(entry)))
		if len(fields) == 0 {
			continue
		}
		bin := fields[0]
		subs, seen := al[bin]
		if len(fields) == 1 {
			al[bin] = map[string]bool{}
			continue
		}
		if seen && len(subs) == 0 {
			// Binary already allowed unrestricted.
			continue
		}
		if subs == nil {
			subs = map[string]bool{}
			al[bin] = subs
		}
		subs[fields[1]] = true
	}
	return al
}

// Merge returns a new Allowlist combining a and b.
func (a Allowlist) Merge(b Allowlist) Allowlist {
	out := make(Allowlist, len(a)+len(b))
	for _, src := range []Allowlist{a, b} {
		for bin, subs := range src {
			if len(subs) == 0 {
				out[bin] = map[string]bool{}
				continue
			}
			existing, seen := out[bin]
			if seen && len(existing) == 0 {
				continue
			}
			if existing == nil {
				existing = map[string]bool{}
				out[bin] = existing
			}
			for sub := range subs {
				existing[sub] = true
			}
		}
	}
	return out
}

// Allows reports whether binary (or its path basename) may run with the
// given subcommand. Flags are not subcommands and never restrict.
func (a Allowlist) Allows(binary, subcommand string) bool {
	bin := strings.ToLower(filepath.Base(strings.TrimSpace(binary)))
	subs, ok := a[bin]
	if !ok {
		return false
	}
	if len(subs) == 0 {
		return true
	}
	sub := strings.ToLower(strings.TrimSpace(subcommand))
	if sub == "" || strings.HasPrefix(sub, "-") {
		// "git --version" style invocations pass any subcommand check.
		return true
	}
	return subs[sub]
}

// Binaries returns the allowed binary names, sorted.
func (a Allowlist) Binaries() []string {
	out := make([]string, 0, len(a))
	for bin := range a {
		out = append(out, bin)
	}
	sort.Strings(out)
	return out
}
