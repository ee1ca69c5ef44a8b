// Package syncer reconciles the board branch with every configured remote.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/ganban/internal/apperr"
	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/gitstore"
)

// Result reports what one sync cycle did.
type Result struct {
	Fetched []string `json:"fetched"`
	Merged  []string `json:"merged"`
	Pushed  *string  `json:"pushed"`
	Error   *string  `json:"error"`
}

func newResult() Result {
	return Result{Fetched: []string{}, Merged: []string{}}
}

// OK reports whether the cycle finished without error.
func (r Result) OK() bool { return r.Error == nil }

func (r *Result) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Error = &msg
}

// Syncer runs sync cycles against one store.
type Syncer struct {
	store  *gitstore.Store
	logger *slog.Logger
}

// New creates a Syncer.
func New(store *gitstore.Store, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: store, logger: logger}
}

// Store returns the store the syncer works on.
func (s *Syncer) Store() *gitstore.Store { return s.store }

// Upstream returns the remote boards are pushed to: the branch's configured
// remote, else origin, else the first remote.
func (s *Syncer) Upstream(ctx context.Context, remotes []string) string {
	if len(remotes) == 0 {
		return ""
	}
	key := "branch." + s.store.Branch() + ".remote"
	if r, ok, err := s.store.Repo().ConfigGet(ctx, key); err == nil && ok && slices.Contains(remotes, r) {
		return r
	}
	if slices.Contains(remotes, "origin") {
		return "origin"
	}
	return remotes[0]
}

// mergeOrder puts the upstream last so its state wins the final merge.
func mergeOrder(remotes []string, upstream string) []string {
	order := make([]string, 0, len(remotes))
	for _, r := range remotes {
		if r != upstream {
			order = append(order, r)
		}
	}
	if upstream != "" {
		order = append(order, upstream)
	}
	return order
}

// cancelled records ctx's error in res. Repository commands are never
// interrupted, so the cycle checks for cancellation between them.
func cancelled(ctx context.Context, res *Result) bool {
	if err := ctx.Err(); err != nil {
		res.fail("sync cancelled: %v", err)
		return true
	}
	return false
}

func (s *Syncer) fetchAll(ctx context.Context, remotes []string, res *Result) bool {
	for _, remote := range remotes {
		if cancelled(ctx, res) {
			return false
		}
		if err := s.store.Repo().Fetch(ctx, remote); err != nil {
			s.logger.Warn("sync: fetch failed", slog.String("remote", remote), slog.String("error", err.Error()))
			continue
		}
		res.Fetched = append(res.Fetched, remote)
	}
	return true
}

func (s *Syncer) push(ctx context.Context, upstream string, res *Result) {
	if cancelled(ctx, res) {
		return
	}
	if err := s.store.Repo().Push(ctx, upstream, s.store.Branch()); err != nil {
		s.logger.Warn("sync: push failed", slog.String("remote", upstream), slog.String("error", err.Error()))
		return
	}
	res.Pushed = &upstream
}

func (s *Syncer) hasTrackingRef(ctx context.Context, remote string) bool {
	_, ok, err := s.store.Repo().ResolveRef(ctx, s.store.RemoteRef(remote))
	return err == nil && ok
}

// mergeRemote merges remote's tracking branch into b. It reports whether a
// merge commit was made.
func (s *Syncer) mergeRemote(ctx context.Context, b *board.Board, remote string) (bool, error) {
	mr, err := s.store.CheckRemoteForMerge(ctx, b, remote)
	if err != nil || mr == nil {
		return false, err
	}
	msg := fmt.Sprintf("Merge %s/%s", remote, s.store.Branch())
	if _, err := s.store.TryAutoMerge(ctx, b, mr, msg); err != nil {
		return false, err
	}
	return true, nil
}

func mergeFailure(res *Result, what string, err error) {
	if errors.Is(err, apperr.ErrConflict) {
		res.fail("conflict merging %s", what)
	} else {
		res.fail("merging %s: %v", what, err)
	}
}

// RunOnce fetches every remote, merges each remote's board branch into the
// local one, and pushes to the upstream. The board is reloaded from the
// branch before every merge. A conflict or a cancelled ctx stops the cycle.
func (s *Syncer) RunOnce(ctx context.Context) Result {
	res := newResult()
	if cancelled(ctx, &res) {
		return res
	}
	if _, err := s.store.Load(ctx); err != nil {
		res.fail("%v", err)
		return res
	}

	remotes, err := s.store.Repo().Remotes(ctx)
	if err != nil {
		res.fail("%v", err)
		return res
	}
	if len(remotes) == 0 {
		return res
	}
	upstream := s.Upstream(ctx, remotes)
	if !s.fetchAll(ctx, remotes, &res) {
		return res
	}

	for _, remote := range mergeOrder(remotes, upstream) {
		if cancelled(ctx, &res) {
			return res
		}
		if !s.hasTrackingRef(ctx, remote) {
			continue
		}
		b, err := s.store.Load(ctx)
		if err != nil {
			res.fail("%v", err)
			return res
		}
		merged, err := s.mergeRemote(ctx, b, remote)
		if err != nil {
			mergeFailure(&res, remote+"/"+s.store.Branch(), err)
			return res
		}
		if merged {
			res.Merged = append(res.Merged, remote)
		}
	}

	s.push(ctx, upstream, &res)
	return res
}

// RunLive syncs a board that is being edited in memory. Local steps run when
// the repository's ganban.sync-local setting is on, remote steps when
// ganban.sync-remote is. The in-memory state is saved (merging with any
// other local writer), then remote branches are merged into it. After every
// merge the live board is updated in place from the merge commit, so the next
// merge starts from everything merged so far.
func (s *Syncer) RunLive(ctx context.Context, live *board.Board) Result {
	res := newResult()
	if cancelled(ctx, &res) {
		return res
	}
	doLocal, doRemote := live.SyncLocal(), live.SyncRemote()

	var remotes []string
	var upstream string
	if doRemote {
		var err error
		remotes, err = s.store.Repo().Remotes(ctx)
		if err != nil {
			s.logger.Warn("sync: list remotes failed", slog.String("error", err.Error()))
		}
		upstream = s.Upstream(ctx, remotes)
		if !s.fetchAll(ctx, remotes, &res) {
			return res
		}
	}

	if doLocal {
		if cancelled(ctx, &res) {
			return res
		}
		_, merged, err := s.store.SaveOrMerge(ctx, live, "Update board")
		if err != nil {
			mergeFailure(&res, "local changes", err)
			return res
		}
		if merged && !s.refreshAfterMerge(ctx, live, &res) {
			return res
		}

		if doRemote {
			for _, remote := range mergeOrder(remotes, upstream) {
				if cancelled(ctx, &res) {
					return res
				}
				if !s.hasTrackingRef(ctx, remote) {
					continue
				}
				ok, err := s.mergeRemote(ctx, live, remote)
				if err != nil {
					mergeFailure(&res, remote+"/"+s.store.Branch(), err)
					return res
				}
				if !ok {
					continue
				}
				res.Merged = append(res.Merged, remote)
				if !s.refreshAfterMerge(ctx, live, &res) {
					return res
				}
			}
		}
	}

	if doRemote && upstream != "" {
		s.push(ctx, upstream, &res)
	}
	return res
}

func (s *Syncer) refreshAfterMerge(ctx context.Context, live *board.Board, res *Result) bool {
	if err := s.Refresh(ctx, live); err != nil {
		res.fail("reload after merge: %v", err)
		return false
	}
	return true
}

// Refresh reconciles live with the board at its commit, keeping the identity
// of every unchanged node.
func (s *Syncer) Refresh(ctx context.Context, live *board.Board) error {
	fresh, err := s.store.LoadCommit(ctx, live.Commit())
	if err != nil {
		return err
	}
	live.Root().Update(fresh.Root())
	return nil
}

// Daemon runs cycle every interval seconds until ctx is cancelled. The wait
// between cycles is slept in one-second steps so cancellation is noticed
// promptly.
func (s *Syncer) Daemon(ctx context.Context, interval int, cycle func(context.Context) Result) error {
	if interval < 1 {
		interval = 1
	}
	s.logger.Info("sync: daemon started", slog.Int("interval", interval))
	for {
		res := cycle(ctx)
		switch {
		case !res.OK():
			s.logger.Error("sync: cycle failed", slog.String("error", *res.Error))
		case len(res.Merged) > 0:
			s.logger.Info("sync: merged", slog.Any("remotes", res.Merged))
		}

		for range interval {
			select {
			case <-ctx.Done():
				s.logger.Info("sync: daemon stopped")
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}
