package game_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"fableroom/internal/game"
	"fableroom/internal/narrative"
	"fableroom/internal/store"
)

// fakeEngine scripts narration outcomes for tests.
type fakeEngine struct {
	narrate func(action string, scene narrative.Scene) (narrative.Outcome, error)
	calls   int
}

func (f *fakeEngine) Narrate(ctx context.Context, action string, scene narrative.Scene) (narrative.Outcome, error) {
	f.calls++
	if f.narrate == nil {
		return narrative.Outcome{Kind: narrative.KindRaw, Narrative: "The story continues."}, nil
	}
	return f.narrate(action, scene)
}

// testClock is a manually advanced clock for deterministic deadlines.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMachine(t *testing.T, engine narrative.Engine) (*game.Machine, *store.Memory, *testClock) {
	t.Helper()
	mem := store.NewMemory()
	clock := &testClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	ids := 0
	m := game.NewMachine(mem, engine, slog.New(slog.DiscardHandler), game.MachineConfig{
		TurnLimit: time.Minute,
		Now:       clock.now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	return m, mem, clock
}

// startedSession creates a session with the named players joined and ready.
func startedSession(t *testing.T, m *game.Machine, names ...string) (game.Session, []game.Player) {
	t.Helper()
	ctx := context.Background()

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var players []game.Player
	for _, name := range names {
		_, p, err := m.Join(ctx, s.ID, name)
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		players = append(players, p)
	}
	var latest game.Session
	for _, p := range players {
		latest, err = m.SetReady(ctx, s.ID, p.ID, true)
		if err != nil {
			t.Fatalf("ready %s: %v", p.ID, err)
		}
	}
	if !latest.Started {
		t.Fatal("session should have started once all players are ready")
	}
	return latest, players
}

func TestStartTransition(t *testing.T) {
	m, _, _ := newMachine(t, &fakeEngine{})
	ctx := context.Background()

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Started {
		t.Fatal("new session must not be started")
	}

	_, a, _ := m.Join(ctx, s.ID, "Ada")
	_, b, _ := m.Join(ctx, s.ID, "Brin")

	mid, err := m.SetReady(ctx, s.ID, a.ID, true)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if mid.Started {
		t.Fatal("session started with one unready player")
	}

	final, err := m.SetReady(ctx, s.ID, b.ID, true)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if !final.Started || final.TurnIndex != 0 {
		t.Fatalf("started=%v turnIndex=%d, want started at turn 0", final.Started, final.TurnIndex)
	}
	if final.TurnDeadline == nil {
		t.Fatal("start must arm the turn deadline")
	}
}

func TestActionBeforeStartRejected(t *testing.T) {
	m, _, _ := newMachine(t, &fakeEngine{})
	ctx := context.Background()

	s, _ := m.Create(ctx)
	_, a, _ := m.Join(ctx, s.ID, "Ada")

	if _, err := m.ApplyAction(ctx, s.ID, a.ID, "look"); !errors.Is(err, game.ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
}

func TestJoinAfterStartRejected(t *testing.T) {
	m, _, _ := newMachine(t, &fakeEngine{})
	s, _ := startedSession(t, m, "Ada")

	if _, _, err := m.Join(context.Background(), s.ID, "Late"); !errors.Is(err, game.ErrAlreadyStarted) {
		t.Fatalf("err = %v, want ErrAlreadyStarted", err)
	}
}

func TestTurnRoundRobin(t *testing.T) {
	m, _, _ := newMachine(t, &fakeEngine{})
	s, players := startedSession(t, m, "Ada", "Brin", "Cole")
	ctx := context.Background()

	for turn := 0; turn < len(players); turn++ {
		next, err := m.ApplyAction(ctx, s.ID, players[turn].ID, "look around")
		if err != nil {
			t.Fatalf("turn %d: %v", turn, err)
		}
		want := (turn + 1) % len(players)
		if next.TurnIndex != want {
			t.Fatalf("turnIndex after turn %d = %d, want %d", turn, next.TurnIndex, want)
		}
	}
}

func TestForeignTurnRejectedWithoutMutation(t *testing.T) {
	engine := &fakeEngine{}
	m, mem, _ := newMachine(t, engine)
	s, players := startedSession(t, m, "Ada", "Brin")
	ctx := context.Background()

	before, _ := mem.Read(ctx, s.ID)

	_, err := m.ApplyAction(ctx, s.ID, players[1].ID, "steal the turn")
	if !errors.Is(err, game.ErrNotYourTurn) {
		t.Fatalf("err = %v, want ErrNotYourTurn", err)
	}
	if engine.calls != 0 {
		t.Fatal("rejected action must not reach the engine")
	}

	after, _ := mem.Read(ctx, s.ID)
	if after.TurnIndex != before.TurnIndex || len(after.History) != len(before.History) || len(after.Discovered) != len(before.Discovered) {
		t.Fatal("rejected action mutated the session")
	}
}

func TestUnknownPlayerRejected(t *testing.T) {
	m, _, _ := newMachine(t, &fakeEngine{})
	s, _ := startedSession(t, m, "Ada")

	if _, err := m.ApplyAction(context.Background(), s.ID, "ghost", "boo"); !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
}

func TestEngineFailureStillAdvancesTurn(t *testing.T) {
	engine := &fakeEngine{narrate: func(string, narrative.Scene) (narrative.Outcome, error) {
		return narrative.Outcome{}, errors.New("model exploded")
	}}
	m, _, _ := newMachine(t, engine)
	s, players := startedSession(t, m, "Ada", "Brin")

	next, err := m.ApplyAction(context.Background(), s.ID, players[0].ID, "open the door")
	if err != nil {
		t.Fatalf("engine failure must not fail the action: %v", err)
	}
	if next.TurnIndex != 1 {
		t.Fatalf("turnIndex = %d, want 1", next.TurnIndex)
	}
	if next.Resting {
		t.Fatal("plain failure must not set the resting banner")
	}
}

func TestRateLimitSetsRestingBanner(t *testing.T) {
	engine := &fakeEngine{narrate: func(string, narrative.Scene) (narrative.Outcome, error) {
		return narrative.Outcome{}, fmt.Errorf("%w: quota", narrative.ErrRateLimited)
	}}
	m, _, _ := newMachine(t, engine)
	s, players := startedSession(t, m, "Ada", "Brin")

	next, err := m.ApplyAction(context.Background(), s.ID, players[0].ID, "open the door")
	if err != nil {
		t.Fatalf("rate limit must not fail the action: %v", err)
	}
	if !next.Resting {
		t.Fatal("rate limit must set the resting banner")
	}
	if next.TurnIndex != 1 {
		t.Fatalf("turnIndex = %d, want 1", next.TurnIndex)
	}
}

func TestSkipExpiredTurnIsIdempotent(t *testing.T) {
	m, _, clock := newMachine(t, &fakeEngine{})
	s, _ := startedSession(t, m, "Ada", "Brin")
	ctx := context.Background()

	observedTurn := s.TurnIndex
	observedDeadline := *s.TurnDeadline

	// Not yet expired: nothing happens.
	if _, skipped, err := m.SkipExpiredTurn(ctx, s.ID, observedTurn, observedDeadline); err != nil || skipped {
		t.Fatalf("premature skip = (%v, %v)", skipped, err)
	}

	clock.advance(2 * time.Minute)

	first, skipped, err := m.SkipExpiredTurn(ctx, s.ID, observedTurn, observedDeadline)
	if err != nil || !skipped {
		t.Fatalf("skip = (%v, %v), want applied", skipped, err)
	}
	if first.TurnIndex != 1 {
		t.Fatalf("turnIndex = %d, want 1", first.TurnIndex)
	}

	// A second timer firing with the same stale observation is a no-op.
	second, skipped, err := m.SkipExpiredTurn(ctx, s.ID, observedTurn, observedDeadline)
	if err != nil || skipped {
		t.Fatalf("duplicate skip = (%v, %v), want no-op", skipped, err)
	}
	if second.TurnIndex != 1 {
		t.Fatalf("turnIndex after duplicate = %d, want 1", second.TurnIndex)
	}

	skipLines := 0
	for _, line := range second.History {
		if strings.Contains(line, "Turn skipped") {
			skipLines++
		}
	}
	if skipLines != 1 {
		t.Fatalf("history has %d skip lines, want exactly 1", skipLines)
	}
}

func TestSnapshotUnaffectedByLaterJoin(t *testing.T) {
	m, mem, _ := newMachine(t, &fakeEngine{})
	ctx := context.Background()

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := m.Join(ctx, s.ID, "Ada"); err != nil {
		t.Fatalf("join: %v", err)
	}

	before, err := mem.Read(ctx, s.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rosterLen := len(before.Roster)

	_, brin, err := m.Join(ctx, s.ID, "Brin")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, ok := before.Inventory[brin.ID]; ok {
		t.Fatal("snapshot taken before the join gained the new player's inventory key")
	}
	if len(before.Roster) != rosterLen {
		t.Fatalf("snapshot roster grew after the fact: %v", before.Roster)
	}
}

func TestTwoPlayerScenario(t *testing.T) {
	engine := &fakeEngine{narrate: func(action string, scene narrative.Scene) (narrative.Outcome, error) {
		if strings.Contains(action, "forest") {
			return narrative.Outcome{
				Kind:      narrative.KindStructured,
				Narrative: "You walk into the forest.",
				Delta:     narrative.Delta{Location: "forest"},
			}, nil
		}
		return narrative.Outcome{Kind: narrative.KindRaw, Narrative: "You reach for the torch."}, nil
	}}
	m, mem, _ := newMachine(t, engine)
	s, players := startedSession(t, m, "Ada", "Brin")
	ctx := context.Background()

	// Seed a discovered item the way a prior narration would have.
	seeded, _ := mem.Read(ctx, s.ID)
	seeded.Discovered = []string{"torch"}
	if err := mem.Write(ctx, s.ID, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	afterA, err := m.ApplyAction(ctx, s.ID, players[0].ID, "take torch")
	if err != nil {
		t.Fatalf("take torch: %v", err)
	}
	if got := afterA.Inventory[players[0].ID]; len(got) != 1 || got[0] != "torch" {
		t.Fatalf("inventory[A] = %v, want [torch]", got)
	}
	if len(afterA.Discovered) != 0 {
		t.Fatalf("discovered = %v, want empty", afterA.Discovered)
	}
	if afterA.TurnIndex != 1 {
		t.Fatalf("turnIndex = %d, want 1", afterA.TurnIndex)
	}

	afterB, err := m.ApplyAction(ctx, s.ID, players[1].ID, "go forest")
	if err != nil {
		t.Fatalf("go forest: %v", err)
	}
	if afterB.Location != "forest" {
		t.Fatalf("location = %q, want forest", afterB.Location)
	}
	if afterB.TurnIndex != 0 {
		t.Fatalf("turnIndex = %d, want 0", afterB.TurnIndex)
	}
}
