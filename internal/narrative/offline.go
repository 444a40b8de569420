package narrative

import "context"

// Offline is the engine used when no model is configured. Every call fails
// with ErrUnavailable, which pushes the caller onto its fallback narrations;
// the game stays playable, just without generated text.
type Offline struct{}

func (Offline) Narrate(ctx context.Context, action string, scene Scene) (Outcome, error) {
	return Outcome{}, ErrUnavailable
}
