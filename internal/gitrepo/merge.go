package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// MergeBase returns the best common ancestor of a and b. ok is false when
// they share no history.
func (r *Repo) MergeBase(ctx context.Context, a, b string) (base string, ok bool, err error) {
	out, err := r.Run(ctx, "merge-base", a, b)
	if err != nil {
		if ExitCode(err) == 1 {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// MergeResult is the outcome of a three-way tree merge.
type MergeResult struct {
	Tree      string
	Conflicts []string
}

// Clean reports whether the merge had no conflicts.
func (m MergeResult) Clean() bool { return len(m.Conflicts) == 0 }

// MergeTree merges commits ours and theirs against their merge base without
// touching any index or working tree. A conflicted merge still returns the
// tree git wrote, with conflict markers in the affected files.
func (r *Repo) MergeTree(ctx context.Context, ours, theirs string) (MergeResult, error) {
	out, err := r.run(ctx, runOpts{}, "merge-tree", "--write-tree", "--name-only", "-z", ours, theirs)
	if err != nil && ExitCode(err) != 1 {
		return MergeResult{}, err
	}
	fields := strings.Split(string(out), "\x00")
	res := MergeResult{Tree: strings.TrimSpace(fields[0])}
	if err == nil {
		return res, nil
	}
	seen := make(map[string]bool)
	for _, f := range fields[1:] {
		if f == "" {
			break
		}
		if !seen[f] {
			seen[f] = true
			res.Conflicts = append(res.Conflicts, f)
		}
	}
	return res, nil
}

// TempIndex is a throwaway index file used to edit a tree without touching
// the repository's own index.
type TempIndex struct {
	repo *Repo
	dir  string
	env  []string
}

// NewTempIndex creates an empty temporary index. Call Close to remove it.
func (r *Repo) NewTempIndex() (*TempIndex, error) {
	dir, err := os.MkdirTemp("", "ganban-index-")
	if err != nil {
		return nil, err
	}
	return &TempIndex{
		repo: r,
		dir:  dir,
		env:  []string{"GIT_INDEX_FILE=" + filepath.Join(dir, "index")},
	}, nil
}

func (ix *TempIndex) run(ctx context.Context, args ...string) (string, error) {
	out, err := ix.repo.run(ctx, runOpts{env: ix.env}, args...)
	return strings.TrimSpace(string(out)), err
}

// ReadTree loads tree into the index.
func (ix *TempIndex) ReadTree(ctx context.Context, tree string) error {
	_, err := ix.run(ctx, "read-tree", tree)
	return err
}

// Put stores an entry at path.
func (ix *TempIndex) Put(ctx context.Context, mode, hash, path string) error {
	_, err := ix.run(ctx, "update-index", "--add", "--cacheinfo", mode+","+hash+","+path)
	return err
}

// Remove drops path from the index.
func (ix *TempIndex) Remove(ctx context.Context, path string) error {
	_, err := ix.run(ctx, "update-index", "--force-remove", path)
	return err
}

// WriteTree writes the index as a tree object.
func (ix *TempIndex) WriteTree(ctx context.Context) (string, error) {
	return ix.run(ctx, "write-tree")
}

// Close deletes the index file.
func (ix *TempIndex) Close() error {
	return os.RemoveAll(ix.dir)
}
