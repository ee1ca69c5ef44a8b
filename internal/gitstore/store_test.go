package gitstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/ganban/internal/apperr"
	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/gitrepo"
	"github.com/starford/ganban/internal/testutil"
)

func testStore(t *testing.T) (*Store, *gitrepo.Repo) {
	t.Helper()
	r := testutil.GitRepo(t)
	s := New(r)
	if _, err := s.Init(context.Background(), "Test board"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s, r
}

func load(t *testing.T, s *Store) *board.Board {
	t.Helper()
	b, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b
}

func save(t *testing.T, s *Store, b *board.Board, msg string) string {
	t.Helper()
	c, err := s.Save(context.Background(), b, msg)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return c
}

func setBody(t *testing.T, b *board.Board, id, body string) {
	t.Helper()
	c := b.Card(id)
	if c == nil {
		t.Fatalf("card %s missing", id)
	}
	c.Sections().Set(c.Title(), body)
}

func columnNames(b *board.Board) []string {
	var names []string
	for _, c := range b.AllColumns() {
		names = append(names, c.Name())
	}
	return names
}

func TestLoad_NoBranch(t *testing.T) {
	s := New(testutil.GitRepo(t))
	_, err := s.Load(context.Background())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInit(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	tip, _, _ := s.Tip(ctx)

	again, err := s.Init(ctx, "Other")
	if err != nil {
		t.Fatal(err)
	}
	if again != tip {
		t.Errorf("second Init moved the branch: %s != %s", again, tip)
	}

	b := load(t, s)
	if b.Title() != "Test board" {
		t.Errorf("title = %q", b.Title())
	}
	if diff := cmp.Diff([]string{"Backlog", "Doing", "Done"}, columnNames(b)); diff != "" {
		t.Errorf("columns (-want +got):\n%s", diff)
	}
	if b.Commit() != tip || len(tip) != 40 {
		t.Errorf("commit = %q, tip = %q", b.Commit(), tip)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, _ := testStore(t)
	b := load(t, s)

	doing := b.Column("2")
	first := board.CreateCard(b, "Fix login", "Users can't log in.", nil, -1)
	first.Meta().Set(board.MetaLabels, []string{"bug"})
	second := board.CreateCard(b, "Write docs", "", doing, -1)
	second.Sections().Set("Notes", "Keep it short.")
	if _, err := board.CreateColumn(b, "Archive", "", true); err != nil {
		t.Fatal(err)
	}
	save(t, s, b, "add cards")

	got := load(t, s)
	if diff := cmp.Diff([]string{"1", "2"}, got.CardIDs()); diff != "" {
		t.Errorf("card ids (-want +got):\n%s", diff)
	}
	c1 := got.Card("1")
	if c1.Title() != "Fix login" || c1.Body() != "Users can't log in." {
		t.Errorf("card 1 = %q / %q", c1.Title(), c1.Body())
	}
	if diff := cmp.Diff([]string{"bug"}, c1.Labels()); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Write docs", "Notes"}, got.Card("2").Sections().Keys()); diff != "" {
		t.Errorf("sections (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1"}, got.Column("1").Links()); diff != "" {
		t.Errorf("backlog links (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2"}, got.Column("2").Links()); diff != "" {
		t.Errorf("doing links (-want +got):\n%s", diff)
	}
	archive := got.Column("4")
	if archive == nil || !archive.Hidden() || archive.DirPath() != ".4.archive" {
		t.Fatalf("hidden column not loaded: %+v", archive)
	}
	if got.Card("1").Archived() {
		t.Error("linked card must not be archived")
	}
}

func TestSave_Layout(t *testing.T) {
	s, r := testStore(t)
	ctx := context.Background()
	b := load(t, s)
	board.CreateCard(b, "Fix login", "", nil, -1)
	board.CreateCard(b, "Second card", "", nil, -1)
	commit := save(t, s, b, "add")

	entries, err := r.LsTree(ctx, commit, "1.backlog/")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, e := range entries {
		got[e.Name] = e.Mode
	}
	want := map[string]string{
		"1.backlog/index.md":          gitrepo.ModeFile,
		"1.backlog/01.fix-login.md":   gitrepo.ModeSymlink,
		"1.backlog/02.second-card.md": gitrepo.ModeSymlink,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("column tree (-want +got):\n%s", diff)
	}

	target, err := r.Run(ctx, "cat-file", "-p", commit+":1.backlog/02.second-card.md")
	if err != nil {
		t.Fatal(err)
	}
	if target != "../.all/2.md" {
		t.Errorf("symlink target = %q", target)
	}

	card, err := r.Run(ctx, "cat-file", "-p", commit+":.all/1.md")
	if err != nil {
		t.Fatal(err)
	}
	if card != "# Fix login" {
		t.Errorf("card file = %q", card)
	}
}

func TestSave_UnchangedIsNoOp(t *testing.T) {
	s, _ := testStore(t)
	b := load(t, s)
	before := b.Commit()
	if got := save(t, s, b, "nothing"); got != before {
		t.Errorf("commit = %s, want %s", got, before)
	}
}

func TestSave_DerivedStateNotPersisted(t *testing.T) {
	s, r := testStore(t)
	b := load(t, s)
	c := board.CreateCard(b, "Loose", "", nil, -1)
	board.ArchiveCard(b, c.ID())
	if !b.Card(c.ID()).Archived() {
		t.Fatal("card should be archived")
	}
	commit := save(t, s, b, "archive")
	data, err := r.Run(context.Background(), "cat-file", "-p", commit+":.all/1.md")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(data, "archived") || strings.Contains(data, "blocked") {
		t.Errorf("derived flag persisted: %q", data)
	}
	if !load(t, s).Card("1").Archived() {
		t.Error("unlinked card should load archived")
	}
}

func TestLoad_DanglingLinkSkipped(t *testing.T) {
	s, r := testStore(t)
	ctx := context.Background()
	b := load(t, s)
	board.CreateCard(b, "Real", "", nil, -1)
	commit := save(t, s, b, "add")

	tree := rewriteColumn(t, r, commit, "1.backlog", func(entries []gitrepo.TreeEntry) []gitrepo.TreeEntry {
		h, err := r.HashObject(ctx, []byte("../.all/99.md"))
		if err != nil {
			t.Fatal(err)
		}
		return append(entries, gitrepo.Symlink("00.ghost.md", h))
	})
	c, err := r.CommitTree(ctx, tree, "dangling", commit)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadCommit(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1"}, got.Column("1").Links()); diff != "" {
		t.Errorf("links (-want +got):\n%s", diff)
	}
}

func TestLoad_AdoptsRegularFile(t *testing.T) {
	s, r := testStore(t)
	ctx := context.Background()
	b := load(t, s)
	board.CreateCard(b, "Existing", "", nil, -1)
	commit := save(t, s, b, "add")

	tree := rewriteColumn(t, r, commit, "2.doing", func(entries []gitrepo.TreeEntry) []gitrepo.TreeEntry {
		h, err := r.HashObject(ctx, []byte("Just some notes.\n"))
		if err != nil {
			t.Fatal(err)
		}
		return append(entries, gitrepo.Blob("05.loose-notes.md", h))
	})
	c, err := r.CommitTree(ctx, tree, "drop file", commit)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadCommit(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	adopted := got.Card("2")
	if adopted == nil {
		t.Fatalf("regular file not adopted, cards = %v", got.CardIDs())
	}
	if adopted.Title() != "loose-notes" || adopted.Body() != "Just some notes." {
		t.Errorf("adopted card = %q / %q", adopted.Title(), adopted.Body())
	}
	if diff := cmp.Diff([]string{"2"}, got.Column("2").Links()); diff != "" {
		t.Errorf("links (-want +got):\n%s", diff)
	}

	// The next save turns the file into a proper card and link.
	commit = save(t, s, got, "adopt")
	entries, err := r.LsTree(ctx, commit, "2.doing/01.loose-notes.md", ".all/2.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Mode != gitrepo.ModeFile || entries[1].Mode != gitrepo.ModeSymlink {
		t.Errorf("entries = %+v", entries)
	}
}

func TestSave_UnchangedLegacyCardKeepsCommit(t *testing.T) {
	s, r := testStore(t)
	ctx := context.Background()
	b := load(t, s)
	board.CreateCard(b, "Existing", "", nil, -1)
	commit := save(t, s, b, "add")

	legacy := "---\ndue: 2024-01-15\nlabels:\n- bug\n- ui\n---\n\n# Existing\n"
	tree := rewriteColumn(t, r, commit, ".all", func(entries []gitrepo.TreeEntry) []gitrepo.TreeEntry {
		h, err := r.HashObject(ctx, []byte(legacy))
		if err != nil {
			t.Fatal(err)
		}
		return []gitrepo.TreeEntry{gitrepo.Blob("1.md", h)}
	})
	c, err := r.CommitTree(ctx, tree, "hand edit", commit)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateRef(ctx, s.Ref(), c); err != nil {
		t.Fatal(err)
	}

	got := load(t, s)
	if got.Card("1").Due() != "2024-01-15" {
		t.Errorf("due = %q", got.Card("1").Due())
	}
	if again := save(t, s, got, "noop"); again != c {
		t.Errorf("saving an unchanged board made commit %s, want %s", again, c)
	}
}

func TestParseDirName(t *testing.T) {
	tests := []struct {
		in     string
		order  string
		title  string
		hidden bool
		ok     bool
	}{
		{"1.backlog", "1", "Backlog", false, true},
		{".3.done", "3", "Done", true, true},
		{"2.in-progress", "2", "In progress", false, true},
		{"notes", "", "", false, false},
	}
	for _, tt := range tests {
		order, title, hidden, ok := parseDirName(tt.in)
		if order != tt.order || title != tt.title || hidden != tt.hidden || ok != tt.ok {
			t.Errorf("parseDirName(%q) = %q %q %v %v", tt.in, order, title, hidden, ok)
		}
	}
}

// rewriteColumn returns a copy of commit's root tree with the entries of dir
// passed through edit.
func rewriteColumn(t *testing.T, r *gitrepo.Repo, commit, dir string, edit func([]gitrepo.TreeEntry) []gitrepo.TreeEntry) string {
	t.Helper()
	ctx := context.Background()
	root, err := r.LsTree(ctx, commit)
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range root {
		if e.Name != dir {
			continue
		}
		entries, err := r.LsTree(ctx, e.Hash)
		if err != nil {
			t.Fatal(err)
		}
		sub, err := r.MkTree(ctx, edit(entries))
		if err != nil {
			t.Fatal(err)
		}
		root[i] = gitrepo.Subtree(dir, sub)
	}
	tree, err := r.MkTree(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	return tree
}
