package narrative

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are the narrator of a cooperative, turn-based text adventure. You describe the world in third person, you never speak for the players, and you never discuss anything outside the game.

Writing rules:
- 2 to 4 sentences of vivid, present-tense narration.
- Narrate the consequences of the player's action, not the action itself.
- Do not break the fourth wall or mention that you are an AI.
- If the action is impossible, explain why in-world and suggest an alternative.

After the narration, report the mechanical outcome. Respond ONLY with a JSON object matching this schema, no prose outside it:

{
  "narrative": "the narration text",
  "location": "new location key, or the current one if unchanged",
  "itemsGained": ["items now in the acting player's possession"],
  "itemsLost": ["items consumed, dropped or destroyed"],
  "itemsEquipped": ["items the player readied for use"],
  "itemsDiscovered": ["items described in the scene but not collected"]
}

Rules for the outcome:
- Never invent items the player could not plausibly reach from the scene.
- Leave arrays empty when nothing changed. Include every field every time.
- "location" changes only when the player actually moves.`

// BuildPrompt assembles the single-turn prompt for one action. The scene is
// rendered as labelled sections so the model cannot confuse shared state with
// the acting player's own.
func BuildPrompt(action string, scene Scene) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n--- CURRENT SCENE ---\n")
	fmt.Fprintf(&b, "Location: %s\n", orNone(scene.Location))
	fmt.Fprintf(&b, "Player inventory: %s\n", listOrNone(scene.Inventory))
	fmt.Fprintf(&b, "Player equipped: %s\n", listOrNone(scene.Equipped))
	fmt.Fprintf(&b, "Items seen but not collected: %s\n", listOrNone(scene.Discovered))
	if len(scene.Recent) > 0 {
		b.WriteString("Recent events:\n")
		for _, line := range scene.Recent {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	fmt.Fprintf(&b, "\nThe player's action: %s\n", strings.TrimSpace(action))
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(unknown)"
	}
	return s
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
