package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fableroom/internal/narrative"
)

// Machine converts (freshest snapshot, actor, action) into the next
// authoritative snapshot and commits it with a single whole-document write.
// It holds no session state of its own: every operation is a read-modify-write
// against the store, so last-writer-wins resolution stays with the store.
type Machine struct {
	store     Store
	engine    narrative.Engine
	logger    *slog.Logger
	turnLimit time.Duration
	now       func() time.Time
	newID     func() string
}

// MachineConfig carries the injectable pieces of a Machine. Zero values fall
// back to the wall clock, uuid generation and DefaultTurnLimit.
type MachineConfig struct {
	TurnLimit time.Duration
	Now       func() time.Time
	NewID     func() string
}

// NewMachine wires a state machine to its store and narrative engine.
func NewMachine(store Store, engine narrative.Engine, logger *slog.Logger, cfg MachineConfig) *Machine {
	if cfg.TurnLimit <= 0 {
		cfg.TurnLimit = DefaultTurnLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:     store,
		engine:    engine,
		logger:    logger,
		turnLimit: cfg.TurnLimit,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
}

// TurnLimit reports the configured per-turn time budget.
func (m *Machine) TurnLimit() time.Duration {
	return m.turnLimit
}

// Create persists a fresh empty session and returns it.
func (m *Machine) Create(ctx context.Context) (Session, error) {
	s := NewSession(m.newID(), m.now())
	if _, err := m.store.Create(ctx, s); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	m.logger.Info("session created", slog.String("session", s.ID))
	return s, nil
}

// Join appends a new player with a fresh id and empty item lists. Joining a
// started session is rejected; late joins are not supported.
func (m *Machine) Join(ctx context.Context, sessionID, name string) (Session, Player, error) {
	s, err := m.store.Read(ctx, sessionID)
	if err != nil {
		return Session{}, Player{}, fmt.Errorf("read session: %w", err)
	}
	s.normalize()

	if s.Started {
		return Session{}, Player{}, ErrAlreadyStarted
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Adventurer"
	}
	p := Player{ID: m.newID(), Name: name}
	s.Roster = append(s.Roster, p)
	s.Inventory[p.ID] = []string{}
	s.Equipped[p.ID] = []string{}
	s.appendHistory(fmt.Sprintf("%s joins the party.", p.Name))
	s.UpdatedAt = m.now()

	if err := m.store.Write(ctx, sessionID, s); err != nil {
		return Session{}, Player{}, fmt.Errorf("write session: %w", err)
	}
	m.logger.Info("player joined", slog.String("session", s.ID), slog.String("player", p.ID))
	return s, p, nil
}

// SetReady flips one player's ready flag. The start transition is evaluated
// here as a pure function of the roster: once every player is ready the
// session starts, the first turn is fixed to roster index zero and the
// deadline is armed. Started never transitions back to false.
func (m *Machine) SetReady(ctx context.Context, sessionID, playerID string, ready bool) (Session, error) {
	s, err := m.store.Read(ctx, sessionID)
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	s.normalize()

	idx := s.playerIndex(playerID)
	if idx < 0 {
		return Session{}, ErrPlayerNotFound
	}
	s.Roster[idx].Ready = ready
	now := m.now()
	s.UpdatedAt = now

	if !s.Started && s.allReady() {
		s.Started = true
		s.TurnIndex = 0
		deadline := now.Add(m.turnLimit)
		s.TurnDeadline = &deadline
		s.appendHistory(fmt.Sprintf("The adventure begins. %s acts first.", s.Roster[0].Name))
		m.logger.Info("session started", slog.String("session", s.ID), slog.Int("players", len(s.Roster)))
	}

	if err := m.store.Write(ctx, sessionID, s); err != nil {
		return Session{}, fmt.Errorf("write session: %w", err)
	}
	return s, nil
}

// ApplyAction runs one full turn: precondition checks against the freshest
// snapshot, command echo, engine narration with its fallback recovery,
// reconciliation, turn advancement and the single commit write. Engine
// failure of any kind still advances the turn.
func (m *Machine) ApplyAction(ctx context.Context, sessionID, actorID, text string) (Session, error) {
	s, err := m.store.Read(ctx, sessionID)
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	s.normalize()

	if !s.Started {
		return Session{}, ErrNotStarted
	}
	idx := s.playerIndex(actorID)
	if idx < 0 {
		return Session{}, ErrPlayerNotFound
	}
	if s.Roster[s.TurnIndex].ID != actorID {
		return Session{}, ErrNotYourTurn
	}

	actor := s.Roster[idx]
	text = strings.TrimSpace(text)
	s.appendHistory(fmt.Sprintf("> %s: %s", actor.Name, text))

	scene := narrative.Scene{
		Location:   s.Location,
		Inventory:  append([]string{}, s.Inventory[actorID]...),
		Equipped:   append([]string{}, s.Equipped[actorID]...),
		Discovered: append([]string{}, s.Discovered...),
		Recent:     s.recentHistory(3),
	}

	outcome, err := m.engine.Narrate(ctx, text, scene)
	switch {
	case err == nil:
		s.Resting = false
	case errors.Is(err, narrative.ErrRateLimited):
		s.Resting = true
		outcome = narrative.Resting(s.Location)
		m.logger.Warn("narrative engine rate limited", slog.String("session", s.ID))
	default:
		outcome = narrative.Fallback(s.Location)
		m.logger.Warn("narrative engine failed", slog.String("session", s.ID), slog.String("error", err.Error()))
	}

	s = reconcile(s, actor, text, outcome)
	s.advanceTurn(m.now(), m.turnLimit)

	if err := m.store.Write(ctx, sessionID, s); err != nil {
		return s, fmt.Errorf("write session: %w", err)
	}
	return s, nil
}

// SkipExpiredTurn forces the turn past a silent player. The observed turn
// index and deadline guard the skip: if the fresh snapshot shows either has
// moved on, another writer already handled this expiry and the call is a
// no-op. That keeps concurrent uncoordinated timers from double-advancing a
// single expired turn.
func (m *Machine) SkipExpiredTurn(ctx context.Context, sessionID string, observedTurn int, observedDeadline time.Time) (Session, bool, error) {
	s, err := m.store.Read(ctx, sessionID)
	if err != nil {
		return Session{}, false, fmt.Errorf("read session: %w", err)
	}
	s.normalize()

	if !s.Started || len(s.Roster) == 0 {
		return s, false, nil
	}
	if s.TurnIndex != observedTurn {
		return s, false, nil
	}
	if s.TurnDeadline == nil || !s.TurnDeadline.Equal(observedDeadline) {
		return s, false, nil
	}
	if m.now().Before(*s.TurnDeadline) {
		return s, false, nil
	}

	skipped := s.Roster[s.TurnIndex].Name
	s.appendHistory(fmt.Sprintf("%s ran out of time. Turn skipped.", skipped))
	s.advanceTurn(m.now(), m.turnLimit)

	if err := m.store.Write(ctx, sessionID, s); err != nil {
		return s, false, fmt.Errorf("write session: %w", err)
	}
	m.logger.Info("turn skipped", slog.String("session", s.ID), slog.Int("turn", s.TurnIndex))
	return s, true, nil
}
