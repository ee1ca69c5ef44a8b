// Package testutil provides shared test helpers for setting up repositories and databases.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/ganban/internal/gitrepo"
	"github.com/starford/ganban/internal/index"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ganban-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// GitRepo creates an empty repository in a temporary directory with a
// committer identity configured.
func GitRepo(t *testing.T) *gitrepo.Repo {
	t.Helper()
	r, err := gitrepo.Init(context.Background(), t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	configure(t, r,
		"user.name", "Test User",
		"user.email", "test@example.com",
		"commit.gpgsign", "false",
	)
	return r
}

// BareRepo creates an empty bare repository to act as a remote.
func BareRepo(t *testing.T) *gitrepo.Repo {
	t.Helper()
	r, err := gitrepo.Init(context.Background(), t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// AddRemote registers remote as name in r.
func AddRemote(t *testing.T, r *gitrepo.Repo, name string, remote *gitrepo.Repo) {
	t.Helper()
	if _, err := r.Run(context.Background(), "remote", "add", name, remote.Dir()); err != nil {
		t.Fatal(err)
	}
}

// SetConfig sets key/value pairs in r's local config.
func SetConfig(t *testing.T, r *gitrepo.Repo, kv ...string) {
	t.Helper()
	configure(t, r, kv...)
}

func configure(t *testing.T, r *gitrepo.Repo, kv ...string) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		if _, err := r.Run(context.Background(), "config", kv[i], kv[i+1]); err != nil {
			t.Fatalf("git config %s: %v", kv[i], err)
		}
	}
}
