package gitrepo

import (
	"context"
	"slices"
	"strconv"
	"strings"
)

// Remotes lists the configured remote names.
func (r *Repo) Remotes(ctx context.Context) ([]string, error) {
	out, err := r.Run(ctx, "remote")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Fetch updates the remote-tracking refs of remote.
func (r *Repo) Fetch(ctx context.Context, remote string) error {
	_, err := r.Run(ctx, "fetch", "--quiet", remote)
	return err
}

// Push publishes the local branch to the same branch on remote.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	ref := "refs/heads/" + branch
	_, err := r.Run(ctx, "push", "--quiet", remote, ref+":"+ref)
	return err
}

// ConfigGet returns a single configuration value. ok is false when unset.
func (r *Repo) ConfigGet(ctx context.Context, key string) (value string, ok bool, err error) {
	out, err := r.Run(ctx, "config", "--get", key)
	if err != nil {
		if ExitCode(err) == 1 {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// ConfigEntry is one key/value pair from git config.
type ConfigEntry struct {
	Key   string
	Value string
}

// ConfigList returns every effective configuration entry in order.
func (r *Repo) ConfigList(ctx context.Context) ([]ConfigEntry, error) {
	out, err := r.run(ctx, runOpts{}, "config", "--list", "-z")
	if err != nil {
		return nil, err
	}
	var entries []ConfigEntry
	for _, rec := range strings.Split(string(out), "\x00") {
		if rec == "" {
			continue
		}
		key, value, _ := strings.Cut(rec, "\n")
		entries = append(entries, ConfigEntry{Key: key, Value: value})
	}
	return entries, nil
}

// Committers returns the distinct "Name <email>" authors of the last n commits
// across all refs, sorted.
func (r *Repo) Committers(ctx context.Context, n int) ([]string, error) {
	out, err := r.Run(ctx, "log", "--all", "-n", strconv.Itoa(n), "--format=%an <%ae>")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		names = append(names, line)
	}
	slices.Sort(names)
	return names, nil
}
