package game

import (
	"testing"

	"fableroom/internal/narrative"
)

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		action string
		class  commandClass
		target string
	}{
		{"take the torch", commandPickup, "torch"},
		{"Pick up rusty key", commandPickup, "rusty key"},
		{"grab", commandPickup, ""},
		{"equip my sword", commandEquip, "sword"},
		{"wield torch", commandEquip, "torch"},
		{"unequip sword", commandUnequip, "sword"},
		{"stow the shield", commandUnequip, "shield"},
		{"takeoff from the roof", commandOther, ""},
		{"go north", commandOther, ""},
	}
	for _, tt := range tests {
		class, target := classifyCommand(tt.action)
		if class != tt.class || target != tt.target {
			t.Errorf("classifyCommand(%q) = (%v, %q), want (%v, %q)", tt.action, class, target, tt.class, tt.target)
		}
	}
}

func TestMatchItem(t *testing.T) {
	items := []string{"Rusty Torch", "silver key"}

	if got, ok := matchItem(items, "rusty torch"); !ok || got != "Rusty Torch" {
		t.Errorf("exact match = (%q, %v)", got, ok)
	}
	if got, ok := matchItem(items, "torch"); !ok || got != "Rusty Torch" {
		t.Errorf("substring match = (%q, %v)", got, ok)
	}
	if got, ok := matchItem(items, "the old torch"); !ok || got != "Rusty Torch" {
		t.Errorf("token overlap match = (%q, %v)", got, ok)
	}
	if _, ok := matchItem(items, "lantern"); ok {
		t.Error("expected no match for lantern")
	}
	if _, ok := matchItem(items, ""); ok {
		t.Error("expected no match for empty target")
	}
}

func newTestSession(t *testing.T) (Session, Player) {
	t.Helper()
	s := NewSession("s1", testNow())
	p := Player{ID: "p1", Name: "Ada", Ready: true}
	s.Roster = []Player{p}
	s.Inventory[p.ID] = []string{}
	s.Equipped[p.ID] = []string{}
	s.Started = true
	return s, p
}

func TestReconcilePickupMovesSingleItem(t *testing.T) {
	s, p := newTestSession(t)
	s.Discovered = []string{"torch", "silver key"}

	out := reconcile(s, p, "take torch", narrative.Outcome{Kind: narrative.KindRaw, Narrative: "You reach out."})

	if len(out.Inventory[p.ID]) != 1 || out.Inventory[p.ID][0] != "torch" {
		t.Fatalf("inventory = %v, want [torch]", out.Inventory[p.ID])
	}
	if len(out.Discovered) != 1 || out.Discovered[0] != "silver key" {
		t.Fatalf("discovered = %v, want [silver key]", out.Discovered)
	}
}

func TestReconcilePickupUnnamedTakesFirst(t *testing.T) {
	s, p := newTestSession(t)
	s.Discovered = []string{"torch", "silver key"}

	out := reconcile(s, p, "grab", narrative.Outcome{Kind: narrative.KindRaw, Narrative: "You grab blindly."})

	if len(out.Inventory[p.ID]) != 1 || out.Inventory[p.ID][0] != "torch" {
		t.Fatalf("inventory = %v, want [torch]", out.Inventory[p.ID])
	}
}

func TestReconcilePickupNothingReplacesNarrative(t *testing.T) {
	s, p := newTestSession(t)

	out := reconcile(s, p, "take torch", narrative.Outcome{Kind: narrative.KindRaw, Narrative: "Something vivid."})

	if len(out.Inventory[p.ID]) != 0 {
		t.Fatalf("inventory = %v, want empty", out.Inventory[p.ID])
	}
	if len(out.History) == 0 || out.History[len(out.History)-1] != narrative.NothingToPickUp {
		t.Fatalf("history = %v, want trailing %q", out.History, narrative.NothingToPickUp)
	}
}

func TestReconcileEquipMovesItem(t *testing.T) {
	s, p := newTestSession(t)
	s.Inventory[p.ID] = []string{"sword", "torch"}

	out := reconcile(s, p, "equip sword", narrative.Outcome{Kind: narrative.KindRaw, Narrative: "ignored"})

	if len(out.Inventory[p.ID]) != 1 || out.Inventory[p.ID][0] != "torch" {
		t.Fatalf("inventory = %v, want [torch]", out.Inventory[p.ID])
	}
	if len(out.Equipped[p.ID]) != 1 || out.Equipped[p.ID][0] != "sword" {
		t.Fatalf("equipped = %v, want [sword]", out.Equipped[p.ID])
	}
}

func TestReconcileEquipAbsentIsNoop(t *testing.T) {
	s, p := newTestSession(t)
	s.Inventory[p.ID] = []string{"torch"}

	out := reconcile(s, p, "equip sword", narrative.Outcome{Kind: narrative.KindRaw, Narrative: "ignored"})

	if len(out.Inventory[p.ID]) != 1 || len(out.Equipped[p.ID]) != 0 {
		t.Fatalf("state changed: inventory=%v equipped=%v", out.Inventory[p.ID], out.Equipped[p.ID])
	}
	if len(out.History) == 0 {
		t.Fatal("expected explanatory history line")
	}
}

func TestReconcileUnequipReturnsItem(t *testing.T) {
	s, p := newTestSession(t)
	s.Equipped[p.ID] = []string{"sword"}

	out := reconcile(s, p, "unequip sword", narrative.Outcome{Kind: narrative.KindRaw, Narrative: "ignored"})

	if len(out.Equipped[p.ID]) != 0 {
		t.Fatalf("equipped = %v, want empty", out.Equipped[p.ID])
	}
	if len(out.Inventory[p.ID]) != 1 || out.Inventory[p.ID][0] != "sword" {
		t.Fatalf("inventory = %v, want [sword]", out.Inventory[p.ID])
	}
}

func TestReconcileAppliesStructuredDelta(t *testing.T) {
	s, p := newTestSession(t)
	s.Inventory[p.ID] = []string{"bread", "dagger"}
	s.Discovered = []string{"rusty torch"}

	out := reconcile(s, p, "eat the bread", narrative.Outcome{
		Kind:      narrative.KindStructured,
		Narrative: "You eat the bread and spot a lantern by the door.",
		Delta: narrative.Delta{
			Location:        "cellar",
			ItemsLost:       []string{"bread"},
			ItemsDiscovered: []string{"lantern", "old torch"},
			ItemsEquipped:   []string{"dagger"},
		},
	})

	if containsItem(out.Inventory[p.ID], "bread") {
		t.Errorf("bread should be consumed: %v", out.Inventory[p.ID])
	}
	if !containsItem(out.Equipped[p.ID], "dagger") {
		t.Errorf("dagger should be equipped: %v", out.Equipped[p.ID])
	}
	if !containsItem(out.Discovered, "lantern") {
		t.Errorf("lantern should be discovered: %v", out.Discovered)
	}
	// "old torch" token-overlaps the known "rusty torch" and must not
	// duplicate it.
	if len(out.Discovered) != 2 {
		t.Errorf("discovered = %v, want exactly [rusty torch lantern]", out.Discovered)
	}
	if out.Location != "cellar" {
		t.Errorf("location = %q, want cellar", out.Location)
	}
}

func TestReconcileDedupesByNormalizedForm(t *testing.T) {
	s, p := newTestSession(t)
	s.Inventory[p.ID] = []string{"Torch"}

	out := reconcile(s, p, "look around", narrative.Outcome{
		Kind:      narrative.KindStructured,
		Narrative: "Nothing new.",
		Delta:     narrative.Delta{ItemsGained: []string{"torch", " TORCH "}},
	})

	if len(out.Inventory[p.ID]) != 1 {
		t.Fatalf("inventory = %v, want single torch", out.Inventory[p.ID])
	}
}
