package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/ganban/internal/apperr"
	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/gitrepo"
	"github.com/starford/ganban/internal/gitstore"
	"github.com/starford/ganban/internal/syncer"
)

// InitResult describes the board after InitBoard.
type InitResult struct {
	RepoPath string   `json:"repo_path"`
	Columns  []string `json:"columns"`
	Created  bool     `json:"created"`
}

// InitBoard creates the board branch in the repository at cfg.RepoPath,
// creating the repository first when there is none. An existing board is
// left alone.
func InitBoard(ctx context.Context, cfg BoardConfig, title string, logger *slog.Logger) (InitResult, error) {
	repo, err := gitrepo.Open(ctx, cfg.RepoPath, gitrepo.WithLogger(logger))
	if errors.Is(err, apperr.ErrNotFound) {
		repo, err = gitrepo.Init(ctx, cfg.RepoPath, false, gitrepo.WithLogger(logger))
	}
	if err != nil {
		return InitResult{}, fmt.Errorf("open repository: %w", err)
	}
	store := gitstore.New(repo, gitstore.WithBranch(cfg.Branch), gitstore.WithLogger(logger))

	existed, err := store.Exists(ctx)
	if err != nil {
		return InitResult{}, err
	}
	if !existed {
		if _, err := store.Init(ctx, title); err != nil {
			return InitResult{}, err
		}
	}
	b, err := store.Load(ctx)
	if err != nil {
		return InitResult{}, err
	}

	res := InitResult{RepoPath: repo.Dir(), Columns: []string{}, Created: !existed}
	for _, col := range b.AllColumns() {
		res.Columns = append(res.Columns, col.Name())
	}
	return res, nil
}

// SyncBoard runs one sync cycle against every remote of the repository at
// cfg.RepoPath. A repository that cannot be opened is reported in the result.
func SyncBoard(ctx context.Context, cfg BoardConfig, logger *slog.Logger) syncer.Result {
	s, err := newSyncer(ctx, cfg, logger)
	if err != nil {
		msg := err.Error()
		return syncer.Result{Fetched: []string{}, Merged: []string{}, Error: &msg}
	}
	return s.RunOnce(ctx)
}

// SyncDaemon syncs every interval seconds until ctx is cancelled. A zero
// interval uses the repository's ganban.sync-interval.
func SyncDaemon(ctx context.Context, cfg BoardConfig, interval int, logger *slog.Logger) error {
	s, err := newSyncer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if interval == 0 {
		interval = board.DefaultSyncInterval
		if b, err := s.Store().Load(ctx); err == nil {
			interval = b.SyncInterval()
		}
	}
	err = s.Daemon(ctx, interval, s.RunOnce)
	logger.Info("sync: stopped")
	return err
}

func newSyncer(ctx context.Context, cfg BoardConfig, logger *slog.Logger) (*syncer.Syncer, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return syncer.New(store, logger), nil
}
