// Package narrative turns player actions into story text using a remote
// language model. The engine is stateless: every call carries the full scene
// context it needs, and failures never carry game state with them.
package narrative

import (
	"context"
	"errors"
)

// Scene is the bounded context handed to the engine with each action: the
// current location, what the acting player carries, what the party has found
// but not collected, and the last few history lines.
type Scene struct {
	Location   string
	Inventory  []string
	Equipped   []string
	Discovered []string
	Recent     []string
}

// Kind discriminates how an Outcome was produced.
type Kind int

const (
	// KindRaw marks an outcome whose payload could not be parsed as the
	// structured schema. Only the narrative text is meaningful.
	KindRaw Kind = iota
	// KindStructured marks an outcome carrying a parsed state delta.
	KindStructured
)

// Delta is the state change the engine proposes alongside its narration.
// The machine treats every field as advisory and reconciles it against the
// authoritative session before applying anything.
type Delta struct {
	Location        string
	ItemsGained     []string
	ItemsLost       []string
	ItemsEquipped   []string
	ItemsDiscovered []string
}

// Outcome is the tagged result of a narration call. Callers branch on Kind
// rather than probing field presence: Delta is only meaningful for
// KindStructured.
type Outcome struct {
	Kind      Kind
	Narrative string
	Delta     Delta
}

// ErrRateLimited signals the model rejected the call for quota reasons.
// Callers map it to the "resting" notice instead of a generic failure.
var ErrRateLimited = errors.New("narrative engine rate limited")

// ErrUnavailable signals the engine has no backing model configured.
var ErrUnavailable = errors.New("narrative engine unavailable")

// Engine produces a narration for one player action. Implementations must be
// safe for concurrent use; the error return covers transport and quota
// failures only, never malformed model output (that degrades to KindRaw).
type Engine interface {
	Narrate(ctx context.Context, action string, scene Scene) (Outcome, error)
}
