package narrative

import "strings"

// NothingToPickUp replaces the narration when a pickup command finds no
// matching item in the scene.
const NothingToPickUp = "You search around, but there is nothing here to pick up."

// fallbacks are the canned narrations used when the engine cannot be
// reached, keyed by location so the dead air at least stays in scene.
var fallbacks = map[string]string{
	"tavern": "The tavern hums on around you. A log shifts in the hearth and the barkeep glances your way, but nothing comes of it.",
	"forest": "Wind moves through the canopy. Somewhere off the path a branch cracks, then the forest settles back into silence.",
	"cave":   "Water drips somewhere deep in the dark. Your footsteps echo and die against the stone.",
	"road":   "The road stretches on. Dust settles behind you and the horizon refuses to get any closer.",
}

const defaultFallback = "A strange stillness passes over the scene. Whatever was about to happen holds its breath, and the moment slips by."

const restingNotice = "The storyteller pauses to rest. The world waits quietly for the tale to resume."

// Fallback returns the canned outcome for a location, used when the engine
// call failed outright. The turn still advances on this narration.
func Fallback(location string) Outcome {
	if text, ok := fallbacks[strings.ToLower(strings.TrimSpace(location))]; ok {
		return Outcome{Kind: KindRaw, Narrative: text}
	}
	return Outcome{Kind: KindRaw, Narrative: defaultFallback}
}

// Resting returns the outcome shown when the model is rate limited. It is a
// distinct, session-visible notice rather than a generic failure.
func Resting(location string) Outcome {
	out := Fallback(location)
	out.Narrative = restingNotice + " " + out.Narrative
	return out
}
