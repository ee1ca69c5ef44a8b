package gitstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/ganban/internal/apperr"
	"github.com/starford/ganban/internal/board"
)

// MergeRequired describes a divergence between the in-memory board and a
// branch.
type MergeRequired struct {
	Base   string
	Ours   string
	Theirs string
}

// ConflictError is returned when a merge cannot be completed automatically.
type ConflictError struct {
	Theirs string
	Paths  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflict with %s in %s", shortID(e.Theirs), strings.Join(e.Paths, ", "))
}

func (e *ConflictError) Unwrap() error { return apperr.ErrConflict }

func shortID(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// CheckForMerge reports whether the board branch moved away from the commit
// the board was loaded from. It returns nil when saving can proceed directly.
func (s *Store) CheckForMerge(ctx context.Context, b *board.Board) (*MergeRequired, error) {
	if b.Commit() == "" {
		return nil, nil
	}
	tip, ok, err := s.Tip(ctx)
	if err != nil {
		return nil, fmt.Errorf("gitstore: resolve branch: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return s.divergence(ctx, b.Commit(), tip, false)
}

// CheckRemoteForMerge reports whether the remote-tracking branch of remote
// has commits the board does not. A remote that is behind needs no merge.
func (s *Store) CheckRemoteForMerge(ctx context.Context, b *board.Board, remote string) (*MergeRequired, error) {
	if b.Commit() == "" {
		return nil, nil
	}
	tip, ok, err := s.repo.ResolveRef(ctx, s.RemoteRef(remote))
	if err != nil {
		return nil, fmt.Errorf("gitstore: resolve %s: %w", s.RemoteRef(remote), err)
	}
	if !ok {
		return nil, nil
	}
	return s.divergence(ctx, b.Commit(), tip, true)
}

func (s *Store) divergence(ctx context.Context, ours, theirs string, skipBehind bool) (*MergeRequired, error) {
	if ours == theirs {
		return nil, nil
	}
	base, ok, err := s.repo.MergeBase(ctx, ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("gitstore: merge base: %w", err)
	}
	if !ok {
		s.logger.Warn("gitstore: no common history", slog.String("ours", ours), slog.String("theirs", theirs))
		return nil, nil
	}
	if skipBehind && base == theirs {
		return nil, nil
	}
	return &MergeRequired{Base: base, Ours: ours, Theirs: theirs}, nil
}

// TryAutoMerge merges the in-memory board with mr.Theirs and moves the branch
// to the result. When the board has no changes of its own since mr.Base the
// branch is fast-forwarded to mr.Theirs. Conflicts are resolved according to
// the repository's merge strategy; with the default strategy a
// *ConflictError is returned and nothing is moved.
func (s *Store) TryAutoMerge(ctx context.Context, b *board.Board, mr *MergeRequired, message string) (string, error) {
	ourTree, err := s.BuildTree(ctx, b)
	if err != nil {
		return "", err
	}
	baseTree, err := s.repo.TreeOf(ctx, mr.Base)
	if err != nil {
		return "", fmt.Errorf("gitstore: base tree: %w", err)
	}
	if ourTree == baseTree {
		if err := s.repo.UpdateRef(ctx, s.Ref(), mr.Theirs); err != nil {
			return "", fmt.Errorf("gitstore: fast-forward: %w", err)
		}
		b.SetCommit(mr.Theirs)
		s.logger.Debug("gitstore: fast-forwarded", slog.String("commit", mr.Theirs))
		return mr.Theirs, nil
	}

	// merge-tree takes commits, so the in-memory tree gets a throwaway commit
	// on top of the base. That also makes the base the merge base.
	ours, err := s.repo.CommitTree(ctx, ourTree, "temp merge commit", mr.Base)
	if err != nil {
		return "", fmt.Errorf("gitstore: temp commit: %w", err)
	}
	res, err := s.repo.MergeTree(ctx, ours, mr.Theirs)
	if err != nil {
		return "", fmt.Errorf("gitstore: merge-tree: %w", err)
	}

	tree := res.Tree
	if !res.Clean() {
		if b.MergeStrategy() != board.MergeNewest {
			return "", &ConflictError{Theirs: mr.Theirs, Paths: res.Conflicts}
		}
		tree, err = s.resolveNewest(ctx, res.Tree, res.Conflicts, ours, mr)
		if err != nil {
			return "", err
		}
	}

	commit, err := s.repo.CommitTree(ctx, tree, message, mr.Ours, mr.Theirs)
	if err != nil {
		return "", fmt.Errorf("gitstore: merge commit: %w", err)
	}
	if err := s.repo.UpdateRef(ctx, s.Ref(), commit); err != nil {
		return "", fmt.Errorf("gitstore: update branch: %w", err)
	}
	b.SetCommit(commit)
	s.logger.Info("gitstore: merged",
		slog.String("commit", commit),
		slog.String("theirs", mr.Theirs),
		slog.Int("conflicts", len(res.Conflicts)))
	return commit, nil
}

// resolveNewest replaces each conflicted path of merged with the version from
// the side whose commit is newer. Ties go to theirs.
func (s *Store) resolveNewest(ctx context.Context, merged string, paths []string, ours string, mr *MergeRequired) (string, error) {
	oursTime, err := s.repo.CommitTime(ctx, mr.Ours)
	if err != nil {
		return "", fmt.Errorf("gitstore: commit time: %w", err)
	}
	theirsTime, err := s.repo.CommitTime(ctx, mr.Theirs)
	if err != nil {
		return "", fmt.Errorf("gitstore: commit time: %w", err)
	}
	winner := mr.Theirs
	if oursTime > theirsTime {
		winner = ours
	}

	ix, err := s.repo.NewTempIndex()
	if err != nil {
		return "", fmt.Errorf("gitstore: temp index: %w", err)
	}
	defer ix.Close()

	if err := ix.ReadTree(ctx, merged); err != nil {
		return "", fmt.Errorf("gitstore: read merged tree: %w", err)
	}
	for _, p := range paths {
		entries, err := s.repo.LsTree(ctx, winner, p)
		if err != nil {
			return "", fmt.Errorf("gitstore: list %s: %w", p, err)
		}
		if len(entries) == 0 {
			if err := ix.Remove(ctx, p); err != nil {
				return "", fmt.Errorf("gitstore: remove %s: %w", p, err)
			}
			continue
		}
		e := entries[0]
		if err := ix.Put(ctx, e.Mode, e.Hash, p); err != nil {
			return "", fmt.Errorf("gitstore: replace %s: %w", p, err)
		}
	}
	tree, err := ix.WriteTree(ctx)
	if err != nil {
		return "", fmt.Errorf("gitstore: write tree: %w", err)
	}
	s.logger.Info("gitstore: conflicts resolved by newest commit",
		slog.String("winner", shortID(winner)),
		slog.Any("paths", paths))
	return tree, nil
}

// SaveOrMerge saves the board, first merging with the branch tip when another
// writer moved it since the board was loaded. merged reports whether a merge
// happened, in which case the caller should reload to pick up their changes.
func (s *Store) SaveOrMerge(ctx context.Context, b *board.Board, message string) (commit string, merged bool, err error) {
	mr, err := s.CheckForMerge(ctx, b)
	if err != nil {
		return "", false, err
	}
	if mr == nil {
		commit, err = s.Save(ctx, b, message)
		return commit, false, err
	}
	commit, err = s.TryAutoMerge(ctx, b, mr, "Auto-merge local changes")
	if err != nil {
		return "", false, err
	}
	return commit, true, nil
}
