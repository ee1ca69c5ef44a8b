package board

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/ganban/internal/node"
)

func TestArchived_FollowsLinks(t *testing.T) {
	b := testBoard(t)
	c := CreateCard(b, "A", "", nil, -1)
	if c.Archived() {
		t.Fatal("linked card should not be archived")
	}

	col := FindCardColumn(b, c.ID())
	col.SetLinks(nil)
	if !c.Archived() {
		t.Error("unlinked card should be archived")
	}

	b.Column("3").SetLinks([]string{c.ID()})
	if c.Archived() {
		t.Error("relinked card should not be archived")
	}
}

func TestArchived_NewUnlinkedCard(t *testing.T) {
	b := testBoard(t)
	b.Cards().Set("77", NewCard("Loose", "").Node())
	if !b.Card("77").Archived() {
		t.Error("card added without links should be archived")
	}
}

func TestBlocked_ReactsToDependencyArchive(t *testing.T) {
	b := testBoard(t)
	dep := CreateCard(b, "Dependency", "", nil, -1)
	c := CreateCard(b, "Dependent", "", nil, -1)
	c.Meta().Set(MetaDeps, []string{dep.ID()})
	if !c.Blocked() {
		t.Fatal("card with open dependency should be blocked")
	}

	if err := ArchiveCard(b, dep.ID()); err != nil {
		t.Fatal(err)
	}
	if !dep.Archived() {
		t.Fatal("dependency should be archived")
	}
	if c.Blocked() {
		t.Error("archiving the dependency should unblock")
	}
}

func TestBlocked_ReactsToDone(t *testing.T) {
	b := testBoard(t)
	dep := CreateCard(b, "Dependency", "", nil, -1)
	c := CreateCard(b, "Dependent", "", nil, -1)
	c.Meta().Set(MetaDeps, []any{dep.ID()})

	dep.Meta().Set(MetaDone, true)
	if c.Blocked() {
		t.Error("done dependency should not block")
	}
	dep.Meta().Delete(MetaDone)
	if !c.Blocked() {
		t.Error("reopened dependency should block again")
	}
}

func TestBlocked_MissingAndPaddedDeps(t *testing.T) {
	b := testBoard(t)
	dep := CreateCard(b, "Dependency", "", nil, -1)
	c := CreateCard(b, "Dependent", "", nil, -1)

	c.Meta().Set(MetaDeps, []any{"404"})
	if c.Blocked() {
		t.Error("unknown dependency should not block")
	}
	c.Meta().Set(MetaDeps, []any{"00" + dep.ID()})
	if !c.Blocked() {
		t.Error("zero-padded dependency id should resolve")
	}
}

func TestDerivedFlagsStayOutOfMeta(t *testing.T) {
	b := testBoard(t)
	c := CreateCard(b, "A", "", nil, -1)
	if c.Meta().Has(KeyArchived) || c.Meta().Has(KeyBlocked) {
		t.Error("derived flags leaked into meta")
	}
	if !c.Node().Has(KeyArchived) || !c.Node().Has(KeyBlocked) {
		t.Error("derived flags missing on card")
	}
}

func TestLabels_Normalized(t *testing.T) {
	b := testBoard(t)
	a := CreateCard(b, "A", "", nil, -1)
	c := CreateCard(b, "C", "", nil, -1)
	a.Meta().Set(MetaLabels, []string{"Bug"})
	c.Meta().Set(MetaLabels, []string{" bug ", "ui"})

	labels := b.Labels()
	if diff := cmp.Diff([]string{"bug", "ui"}, labels.Keys()); diff != "" {
		t.Errorf("label keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{a.ID(), c.ID()}, LabelCards(b, "BUG")); diff != "" {
		t.Errorf("bug cards (-want +got):\n%s", diff)
	}
	if got := labels.Child("bug").String("color"); got != LabelColor("bug") {
		t.Errorf("color = %q, want %q", got, LabelColor("bug"))
	}
}

func TestLabels_OverridesAndIdentity(t *testing.T) {
	b := testBoard(t)
	a := CreateCard(b, "A", "", nil, -1)
	a.Meta().Set(MetaLabels, []string{"bug"})
	b.Meta().Set(MetaLabels, map[string]any{
		"Bug":     map[string]any{"color": "#123456"},
		"roadmap": map[string]any{"color": "#654321"},
	})

	labels := b.Labels()
	bug := labels.Child("bug")
	if bug.String("color") != "#123456" {
		t.Errorf("override color = %q", bug.String("color"))
	}
	roadmap := labels.Child("roadmap")
	if roadmap == nil || len(roadmap.Strings("cards")) != 0 {
		t.Fatalf("zero-card override entry = %v", roadmap)
	}

	fired := 0
	unwatch := bug.Watch("cards", func(node.Container, string, any, any) { fired++ })
	defer unwatch()

	c := CreateCard(b, "C", "", nil, -1)
	c.Meta().Set(MetaLabels, []string{"feature"})
	if labels.Child("bug") != bug {
		t.Error("unaffected label entry lost identity")
	}
	if fired != 0 {
		t.Error("unaffected label entry fired")
	}

	c.Meta().Set(MetaLabels, []string{"bug"})
	if fired != 1 {
		t.Errorf("affected entry fired %d times, want 1", fired)
	}
	if labels.Has("feature") {
		t.Error("unused label should be dropped")
	}
}

func TestRenameLabel(t *testing.T) {
	b := testBoard(t)
	a := CreateCard(b, "A", "", nil, -1)
	c := CreateCard(b, "C", "", nil, -1)
	a.Meta().Set(MetaLabels, []string{"Bug", "ui"})
	c.Meta().Set(MetaLabels, []string{"bug"})
	b.Meta().Set(MetaLabels, map[string]any{"BUG": map[string]any{"color": "#123456"}})

	if n := RenameLabel(b, "bug", "defect"); n != 2 {
		t.Errorf("changed = %d, want 2", n)
	}
	if diff := cmp.Diff([]string{"defect", "ui"}, a.Labels()); diff != "" {
		t.Errorf("card labels (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"defect"}, b.Meta().Child(MetaLabels).Keys()); diff != "" {
		t.Errorf("overrides (-want +got):\n%s", diff)
	}
	if b.Labels().Has("bug") || b.Labels().Child("defect").String("color") != "#123456" {
		t.Errorf("label index = %v", b.Labels().Keys())
	}
}

func TestRenameLabel_MergesIntoExisting(t *testing.T) {
	b := testBoard(t)
	a := CreateCard(b, "A", "", nil, -1)
	a.Meta().Set(MetaLabels, []string{"bug", "defect"})
	RenameLabel(b, "bug", "Defect")
	if diff := cmp.Diff([]string{"Defect"}, a.Labels()); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
}

func TestDeleteLabel(t *testing.T) {
	b := testBoard(t)
	a := CreateCard(b, "A", "", nil, -1)
	a.Meta().Set(MetaLabels, []string{"Bug"})
	b.Meta().Set(MetaLabels, map[string]any{"bug": map[string]any{"color": "#123456"}})

	if n := DeleteLabel(b, "BUG"); n != 1 {
		t.Errorf("changed = %d", n)
	}
	if a.Meta().Has(MetaLabels) {
		t.Error("empty labels key should be removed")
	}
	if b.Meta().Has(MetaLabels) {
		t.Error("empty override map should be removed")
	}
	if b.Labels().Len() != 0 {
		t.Errorf("label index = %v", b.Labels().Keys())
	}
}

func TestAttachDerived_Detach(t *testing.T) {
	b := New("")
	b.Columns().Set("1", NewColumn("1", "Todo", false).Node())
	detach := AttachDerived(b)
	c := CreateCard(b, "A", "", nil, -1)
	detach()
	c.Meta().Set(MetaLabels, []string{"late"})
	if b.Labels().Has("late") {
		t.Error("detached engine still reacting")
	}
}
