package syncer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/gitrepo"
	"github.com/starford/ganban/internal/gitstore"
	"github.com/starford/ganban/internal/testutil"
)

type clone struct {
	repo  *gitrepo.Repo
	store *gitstore.Store
	sync  *Syncer
}

func newClone(t *testing.T, remotes map[string]*gitrepo.Repo) *clone {
	t.Helper()
	r := testutil.GitRepo(t)
	for name, remote := range remotes {
		testutil.AddRemote(t, r, name, remote)
	}
	s := gitstore.New(r)
	return &clone{repo: r, store: s, sync: New(s, nil)}
}

// checkout points the local board branch at remote's copy.
func (c *clone) checkout(t *testing.T, remote string) {
	t.Helper()
	ctx := context.Background()
	if err := c.repo.Fetch(ctx, remote); err != nil {
		t.Fatal(err)
	}
	tip, ok, err := c.repo.ResolveRef(ctx, c.store.RemoteRef(remote))
	if err != nil || !ok {
		t.Fatalf("remote branch missing: ok=%v err=%v", ok, err)
	}
	if err := c.repo.UpdateRef(ctx, c.store.Ref(), tip); err != nil {
		t.Fatal(err)
	}
}

func (c *clone) load(t *testing.T) *board.Board {
	t.Helper()
	b, err := c.store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (c *clone) edit(t *testing.T, fn func(b *board.Board)) {
	t.Helper()
	b := c.load(t)
	fn(b)
	if _, err := c.store.Save(context.Background(), b, "edit"); err != nil {
		t.Fatal(err)
	}
}

func setBody(b *board.Board, id, body string) {
	c := b.Card(id)
	c.Sections().Set(c.Title(), body)
}

// twoClones returns clones a and b sharing a board with two cards through a
// bare origin.
func twoClones(t *testing.T) (a, b *clone) {
	t.Helper()
	ctx := context.Background()
	origin := testutil.BareRepo(t)
	a = newClone(t, map[string]*gitrepo.Repo{"origin": origin})
	if _, err := a.store.Init(ctx, "Shared"); err != nil {
		t.Fatal(err)
	}
	a.edit(t, func(bd *board.Board) {
		board.CreateCard(bd, "First", "one", nil, -1)
		board.CreateCard(bd, "Second", "two", nil, -1)
	})
	if res := a.sync.RunOnce(ctx); !res.OK() || res.Pushed == nil {
		t.Fatalf("initial push: %+v", res)
	}
	b = newClone(t, map[string]*gitrepo.Repo{"origin": origin})
	b.checkout(t, "origin")
	return a, b
}

func TestResult_JSON(t *testing.T) {
	data, err := json.Marshal(newResult())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"fetched":[],"merged":[],"pushed":null,"error":null}` {
		t.Errorf("json = %s", data)
	}
}

func TestMergeOrder(t *testing.T) {
	got := mergeOrder([]string{"origin", "backup", "peer"}, "origin")
	if diff := cmp.Diff([]string{"backup", "peer", "origin"}, got); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestUpstream(t *testing.T) {
	ctx := context.Background()
	c := newClone(t, nil)
	if got := c.sync.Upstream(ctx, []string{"backup", "origin"}); got != "origin" {
		t.Errorf("upstream = %q, want origin", got)
	}
	if got := c.sync.Upstream(ctx, []string{"backup", "peer"}); got != "backup" {
		t.Errorf("upstream = %q, want backup", got)
	}
	testutil.SetConfig(t, c.repo, "branch.ganban.remote", "peer")
	if got := c.sync.Upstream(ctx, []string{"backup", "origin", "peer"}); got != "peer" {
		t.Errorf("upstream = %q, want peer", got)
	}
}

func TestRunOnce_NoBoard(t *testing.T) {
	c := newClone(t, nil)
	res := c.sync.RunOnce(context.Background())
	if res.OK() {
		t.Fatal("expected an error without a board branch")
	}
}

func TestRunOnce_NoRemotes(t *testing.T) {
	c := newClone(t, nil)
	if _, err := c.store.Init(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	res := c.sync.RunOnce(context.Background())
	if !res.OK() || len(res.Fetched) != 0 || res.Pushed != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestRunOnce_FastForward(t *testing.T) {
	ctx := context.Background()
	a, b := twoClones(t)

	b.edit(t, func(bd *board.Board) { setBody(bd, "1", "from b") })
	if res := b.sync.RunOnce(ctx); !res.OK() || len(res.Merged) != 0 {
		t.Fatalf("b sync: %+v", res)
	}

	res := a.sync.RunOnce(ctx)
	if !res.OK() {
		t.Fatalf("a sync: %s", *res.Error)
	}
	if diff := cmp.Diff([]string{"origin"}, res.Merged); diff != "" {
		t.Errorf("merged (-want +got):\n%s", diff)
	}
	if got := a.load(t).Card("1").Body(); got != "from b" {
		t.Errorf("body = %q", got)
	}
}

func TestRunOnce_DivergedMerge(t *testing.T) {
	ctx := context.Background()
	a, b := twoClones(t)

	b.edit(t, func(bd *board.Board) { setBody(bd, "1", "from b") })
	b.sync.RunOnce(ctx)
	a.edit(t, func(bd *board.Board) { setBody(bd, "2", "from a") })

	res := a.sync.RunOnce(ctx)
	if !res.OK() || res.Pushed == nil || *res.Pushed != "origin" {
		t.Fatalf("a sync: %+v", res)
	}
	got := a.load(t)
	if got.Card("1").Body() != "from b" || got.Card("2").Body() != "from a" {
		t.Errorf("bodies = %q, %q", got.Card("1").Body(), got.Card("2").Body())
	}

	// b picks up the merge by fast-forward.
	if res := b.sync.RunOnce(ctx); !res.OK() {
		t.Fatalf("b sync: %s", *res.Error)
	}
	if got := b.load(t).Card("2").Body(); got != "from a" {
		t.Errorf("b body = %q", got)
	}
}

func TestRunOnce_Conflict(t *testing.T) {
	ctx := context.Background()
	a, b := twoClones(t)

	b.edit(t, func(bd *board.Board) { setBody(bd, "1", "from b") })
	b.sync.RunOnce(ctx)
	a.edit(t, func(bd *board.Board) { setBody(bd, "1", "from a") })

	res := a.sync.RunOnce(ctx)
	if res.OK() {
		t.Fatal("expected conflict")
	}
	if *res.Error != "conflict merging origin/ganban" {
		t.Errorf("error = %q", *res.Error)
	}
	if res.Pushed != nil {
		t.Error("a conflicted cycle must not push")
	}
}

func TestRunOnce_PeerWithoutBranchSkipped(t *testing.T) {
	ctx := context.Background()
	a, _ := twoClones(t)
	testutil.AddRemote(t, a.repo, "peer", testutil.BareRepo(t))

	res := a.sync.RunOnce(ctx)
	if !res.OK() {
		t.Fatalf("sync: %s", *res.Error)
	}
	if diff := cmp.Diff([]string{"origin", "peer"}, res.Fetched); diff != "" {
		t.Errorf("fetched (-want +got):\n%s", diff)
	}
	if len(res.Merged) != 0 {
		t.Errorf("merged = %v", res.Merged)
	}
}

func TestRunLive(t *testing.T) {
	ctx := context.Background()
	a, b := twoClones(t)

	b.edit(t, func(bd *board.Board) { setBody(bd, "1", "from b") })
	b.sync.RunOnce(ctx)

	live := a.load(t)
	setBody(live, "2", "unsaved edit")
	second := live.Card("2").Node()

	res := a.sync.RunLive(ctx, live)
	if !res.OK() {
		t.Fatalf("live sync: %s", *res.Error)
	}
	if diff := cmp.Diff([]string{"origin"}, res.Merged); diff != "" {
		t.Errorf("merged (-want +got):\n%s", diff)
	}
	if got := live.Card("1").Body(); got != "from b" {
		t.Errorf("live board not refreshed: %q", got)
	}
	if live.Card("2").Node() != second {
		t.Error("card node identity lost on refresh")
	}
	if got := live.Card("2").Body(); got != "unsaved edit" {
		t.Errorf("in-memory edit lost: %q", got)
	}
	if tip, _, _ := a.store.Tip(ctx); tip != live.Commit() {
		t.Errorf("branch %s, live commit %s", tip, live.Commit())
	}
}

func TestRunLive_LocalAndRemoteMerge(t *testing.T) {
	ctx := context.Background()
	a, b := twoClones(t)

	live := a.load(t)
	setBody(live, "1", "live edit")

	// Another process on the same clone commits first.
	a.edit(t, func(bd *board.Board) { setBody(bd, "2", "other writer") })
	// A peer adds a card and publishes it.
	b.edit(t, func(bd *board.Board) { board.CreateCard(bd, "Third", "three", nil, -1) })
	if res := b.sync.RunOnce(ctx); !res.OK() {
		t.Fatalf("b sync: %s", *res.Error)
	}

	res := a.sync.RunLive(ctx, live)
	if !res.OK() {
		t.Fatalf("live sync: %s", *res.Error)
	}
	if diff := cmp.Diff([]string{"origin"}, res.Merged); diff != "" {
		t.Errorf("merged (-want +got):\n%s", diff)
	}

	want := map[string]string{"1": "live edit", "2": "other writer", "3": "three"}
	for name, bd := range map[string]*board.Board{"live": live, "branch": a.load(t)} {
		for id, body := range want {
			c := bd.Card(id)
			if c == nil {
				t.Errorf("%s: card %s missing", name, id)
				continue
			}
			if c.Body() != body {
				t.Errorf("%s: card %s body = %q, want %q", name, id, c.Body(), body)
			}
		}
	}
}

func TestRunOnce_Cancelled(t *testing.T) {
	a, _ := twoClones(t)
	before, _, _ := a.store.Tip(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := a.sync.RunOnce(ctx)
	if res.OK() {
		t.Fatal("expected an error from a cancelled sync")
	}
	if len(res.Fetched) != 0 || res.Pushed != nil {
		t.Errorf("result = %+v", res)
	}
	if tip, _, _ := a.store.Tip(context.Background()); tip != before {
		t.Error("cancelled sync moved the branch")
	}
}

func TestRunLive_Cancelled(t *testing.T) {
	a, _ := twoClones(t)
	live := a.load(t)
	before := live.Commit()
	setBody(live, "1", "not saved")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := a.sync.RunLive(ctx, live)
	if res.OK() || len(res.Fetched) != 0 || res.Pushed != nil {
		t.Errorf("result = %+v", res)
	}
	if tip, _, _ := a.store.Tip(context.Background()); tip != before {
		t.Error("cancelled sync saved the board")
	}
}

func TestRunLive_LocalDisabled(t *testing.T) {
	ctx := context.Background()
	a, _ := twoClones(t)
	testutil.SetConfig(t, a.repo, "ganban.sync-local", "false")

	live := a.load(t)
	before := live.Commit()
	setBody(live, "1", "not saved")
	if res := a.sync.RunLive(ctx, live); !res.OK() {
		t.Fatalf("live sync: %s", *res.Error)
	}
	if tip, _, _ := a.store.Tip(ctx); tip != before {
		t.Error("sync-local=false must not save")
	}
}

func TestDaemon_StopsOnCancel(t *testing.T) {
	c := newClone(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := c.sync.Daemon(ctx, 30, func(context.Context) Result {
		calls++
		cancel()
		res := newResult()
		res.fail("boom")
		return res
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestResult_FailMessage(t *testing.T) {
	res := newResult()
	res.fail("conflict merging %s", "origin/ganban")
	if !strings.HasPrefix(*res.Error, "conflict") || res.OK() {
		t.Errorf("result = %+v", res)
	}
}
