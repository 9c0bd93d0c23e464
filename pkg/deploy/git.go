package deploy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// sshRemoteRe matches scp-like git SSH remotes (git@github.com:user/repo.git).
var sshRemoteRe = regexp.MustCompile(`^git@([^:]+):(.+)$`)

// TokenEnv returns the env pairs git and the droid subprocess expect for
// authenticated GitHub operations.
func TokenEnv(token string) []string {
	if token == "" {
		return nil
	}
	return []string{"GH_TOKEN=" + token, "GITHUB_TOKEN=" + token}
}

// ToTokenHTTPS converts a git remote URL into a token-embedded HTTPS URL
// for push. SSH remotes (scp-like and ssh://) and plain HTTPS are handled;
// anything else comes back unchanged. Existing userinfo on an HTTPS remote
// is replaced, not kept next to the token.
func ToTokenHTTPS(remote, token string) string {
	if token == "" {
		return remote
	}
	if m := sshRemoteRe.FindStringSubmatch(remote); m != nil {
		return fmt.Sprintf("https://x-access-token:%s@%s/%s", token, m[1], m[2])
	}
	if rest, ok := strings.CutPrefix(remote, "ssh://git@"); ok {
		return fmt.Sprintf("https://x-access-token:%s@%s", token, rest)
	}
	if rest, ok := strings.CutPrefix(remote, "https://"); ok {
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			rest = rest[at+1:]
		}
		return fmt.Sprintf("https://x-access-token:%s@%s", token, rest)
	}
	return remote
}

// Push pushes branch to the repository's origin using a token-embedded
// HTTPS URL. The rewritten URL only ever appears on the git command line of
// this one invocation; the stored remote and .git/config never see the
// token.
func Push(ctx context.Context, dir, branch, token string) error {
	remote, err := remoteURL(ctx, dir)
	if err != nil {
		return err
	}
	pushURL := ToTokenHTTPS(remote, token)

	res, err := runCommand(ctx, dir, TokenEnv(token), "git", "push", pushURL, branch)
	if err != nil {
		return fmt.Errorf("run git push: %w", err)
	}
	if res.exitCode != 0 {
		return fmt.Errorf("git push exited %d: %s", res.exitCode, sanitizeToken(lastChars(res.stderr, 400), token))
	}
	return nil
}

// CurrentBranch returns the checked-out branch name in dir.
func CurrentBranch(ctx context.Context, dir string) (string, error) {
	res, err := runCommand(ctx, dir, nil, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("run git rev-parse: %w", err)
	}
	if res.exitCode != 0 {
		return "", fmt.Errorf("git rev-parse exited %d: %s", res.exitCode, lastChars(res.stderr, 200))
	}
	return strings.TrimSpace(res.stdout), nil
}

func remoteURL(ctx context.Context, dir string) (string, error) {
	res, err := runCommand(ctx, dir, nil, "git", "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("run git remote get-url: %w", err)
	}
	if res.exitCode != 0 {
		return "", fmt.Errorf("no origin remote in %s: %s", dir, lastChars(res.stderr, 200))
	}
	return strings.TrimSpace(res.stdout), nil
}

func sanitizeToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}
