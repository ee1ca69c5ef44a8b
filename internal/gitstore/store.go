// Package gitstore maps boards to git objects on a dedicated branch.
//
// Layout of the branch tree:
//
//	index.md                          board document
//	.all/<id>.md                      one document per card
//	[.]<order>.<slug>/index.md        column document
//	[.]<order>.<slug>/NN.<slug>.md    symlink to ../.all/<id>.md
//
// A leading dot on a column directory marks it hidden. The NN link prefixes
// only order the links; they are recomputed on every save.
package gitstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/ganban/internal/apperr"
	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/gitrepo"
)

const (
	allDir    = ".all"
	indexFile = "index.md"

	maxCommitters = 100
)

// Store loads and saves boards in one repository.
type Store struct {
	repo   *gitrepo.Repo
	branch string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithBranch overrides the branch boards are stored on.
func WithBranch(branch string) Option {
	return func(s *Store) {
		if branch != "" {
			s.branch = branch
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store for repo.
func New(repo *gitrepo.Repo, opts ...Option) *Store {
	s := &Store{repo: repo, branch: board.Branch, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Repo returns the underlying repository.
func (s *Store) Repo() *gitrepo.Repo { return s.repo }

// Branch returns the branch name boards are stored on.
func (s *Store) Branch() string { return s.branch }

// Ref returns the full name of the board branch.
func (s *Store) Ref() string { return "refs/heads/" + s.branch }

// RemoteRef returns the remote-tracking ref of the board branch for remote.
func (s *Store) RemoteRef(remote string) string {
	return "refs/remotes/" + remote + "/" + s.branch
}

// Tip returns the commit the board branch points at. ok is false when the
// branch does not exist.
func (s *Store) Tip(ctx context.Context) (commit string, ok bool, err error) {
	return s.repo.ResolveRef(ctx, s.Ref())
}

// Exists reports whether the board branch exists.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	_, ok, err := s.Tip(ctx)
	return ok, err
}

// Init creates the board branch with a titled board and the columns Backlog,
// Doing and Done. It does nothing when the branch already exists.
func (s *Store) Init(ctx context.Context, title string) (string, error) {
	if tip, ok, err := s.Tip(ctx); err != nil || ok {
		return tip, err
	}
	if title == "" {
		title = board.DefaultTitle
	}
	b := board.New(s.repo.Dir())
	b.Sections().Set(title, "")
	for _, name := range []string{"Backlog", "Doing", "Done"} {
		if _, err := board.CreateColumn(b, name, "", false); err != nil {
			return "", err
		}
	}
	commit, err := s.Save(ctx, b, "Initialize ganban board")
	if err != nil {
		return "", err
	}
	s.logger.Info("gitstore: board initialized", slog.String("repo", s.repo.Dir()), slog.String("commit", commit))
	return commit, nil
}

// Save writes the board as a new commit on the branch and returns its id.
// The parent is the board's base commit, or the branch tip for a board that
// has none. When the tree is unchanged from the parent no commit is made and
// the parent is returned. The branch is moved last, so a failure leaves it
// untouched.
func (s *Store) Save(ctx context.Context, b *board.Board, message string) (string, error) {
	tree, err := s.BuildTree(ctx, b)
	if err != nil {
		return "", err
	}

	parent := b.Commit()
	if parent == "" {
		tip, ok, err := s.Tip(ctx)
		if err != nil {
			return "", fmt.Errorf("gitstore: resolve branch: %w", err)
		}
		if ok {
			parent = tip
		}
	}
	if parent != "" {
		parentTree, err := s.repo.TreeOf(ctx, parent)
		if err != nil {
			return "", fmt.Errorf("gitstore: parent tree: %w", err)
		}
		if parentTree == tree {
			b.SetCommit(parent)
			return parent, nil
		}
	}

	commit, err := s.repo.CommitTree(ctx, tree, message, parent)
	if err != nil {
		return "", fmt.Errorf("gitstore: commit: %w", err)
	}
	if err := s.repo.UpdateRef(ctx, s.Ref(), commit); err != nil {
		return "", fmt.Errorf("gitstore: update branch: %w", err)
	}
	b.SetCommit(commit)
	s.logger.Debug("gitstore: board saved", slog.String("commit", commit), slog.String("message", message))
	return commit, nil
}

// Load reads the board at the branch tip.
func (s *Store) Load(ctx context.Context) (*board.Board, error) {
	tip, ok, err := s.Tip(ctx)
	if err != nil {
		return nil, fmt.Errorf("gitstore: resolve branch: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("gitstore: branch %q: %w", s.branch, apperr.ErrNotFound)
	}
	return s.LoadCommit(ctx, tip)
}

// LoadCommit reads the board stored in commit, attaches derived state and a
// snapshot of the repository's committers and configuration.
func (s *Store) LoadCommit(ctx context.Context, commit string) (*board.Board, error) {
	b, err := s.readTree(ctx, commit)
	if err != nil {
		return nil, err
	}
	b.SetCommit(commit)

	committers, err := s.repo.Committers(ctx, maxCommitters)
	if err != nil {
		s.logger.Warn("gitstore: read committers failed", slog.String("error", err.Error()))
	}
	entries, err := s.repo.ConfigList(ctx)
	if err != nil {
		s.logger.Warn("gitstore: read git config failed", slog.String("error", err.Error()))
	}
	board.SetGitSnapshot(b, committers, board.GitConfig(entries))
	board.AttachDerived(b)
	return b, nil
}
