// Package gitrepo runs git plumbing commands against a repository.
//
// It is the only package that spawns git. Commands never touch the working
// tree: objects are written with hash-object, mktree and commit-tree, and refs
// are moved with update-ref. Commands are not interrupted by context
// cancellation; callers check ctx between steps.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/starford/ganban/internal/apperr"
)

// EmptyTree is the id of the tree with no entries.
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// CommandError describes a git invocation that failed.
type CommandError struct {
	Args     []string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode returns the exit status carried by err, or -1.
func ExitCode(err error) int {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}
	return -1
}

// Repo is a git repository on disk.
type Repo struct {
	dir    string
	logger *slog.Logger
}

// Option configures a Repo.
type Option func(*Repo)

// WithLogger sets the logger used for command tracing.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repo) { r.logger = l }
}

// Open returns the repository containing dir.
func Open(ctx context.Context, dir string, opts ...Option) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	r := newRepo(abs, opts)
	if _, err := r.Run(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("gitrepo: %s is not a git repository: %w", abs, apperr.ErrNotFound)
	}
	return r, nil
}

// Init creates a repository at dir, bare or with a working tree.
func Init(ctx context.Context, dir string, bare bool, opts ...Option) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	r := newRepo(abs, opts)
	args := []string{"init", "--quiet"}
	if bare {
		args = append(args, "--bare")
	}
	if _, err := r.Run(ctx, args...); err != nil {
		return nil, err
	}
	return r, nil
}

func newRepo(dir string, opts []Option) *Repo {
	r := &Repo{dir: dir, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dir returns the directory git runs in.
func (r *Repo) Dir() string { return r.dir }

// GitDir returns the absolute path of the repository's git directory.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	return r.Run(ctx, "rev-parse", "--absolute-git-dir")
}

type runOpts struct {
	stdin io.Reader
	env   []string
}

// Run executes git with args and returns stdout with surrounding whitespace
// trimmed.
func (r *Repo) Run(ctx context.Context, args ...string) (string, error) {
	out, err := r.run(ctx, runOpts{}, args...)
	return strings.TrimSpace(string(out)), err
}

func (r *Repo) run(ctx context.Context, o runOpts, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(context.WithoutCancel(ctx), "git", args...)
	cmd.Dir = r.dir
	cmd.Stdin = o.stdin
	if len(o.env) > 0 {
		cmd.Env = append(os.Environ(), o.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	r.logger.Debug("git", slog.String("dir", r.dir), slog.Any("args", args), slog.Bool("ok", err == nil))
	if err != nil {
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return stdout.Bytes(), &CommandError{
			Args:     args,
			Stderr:   strings.TrimSpace(stderr.String()),
			ExitCode: code,
			Err:      err,
		}
	}
	return stdout.Bytes(), nil
}
