package narrative

import (
	"encoding/json"
	"strings"
)

// payload mirrors the JSON schema the prompt asks the model for.
type payload struct {
	Narrative       string   `json:"narrative"`
	Location        string   `json:"location"`
	ItemsGained     []string `json:"itemsGained"`
	ItemsLost       []string `json:"itemsLost"`
	ItemsEquipped   []string `json:"itemsEquipped"`
	ItemsDiscovered []string `json:"itemsDiscovered"`
}

// ParseOutcome converts raw model output into a tagged Outcome. A payload
// that is not valid JSON, or that lacks narration, degrades to KindRaw with
// the raw text as narrative. Parsing never fails.
func ParseOutcome(raw string) Outcome {
	cleaned := stripCodeFences(raw)

	var p payload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil || strings.TrimSpace(p.Narrative) == "" {
		return Outcome{Kind: KindRaw, Narrative: strings.TrimSpace(raw)}
	}

	return Outcome{
		Kind:      KindStructured,
		Narrative: strings.TrimSpace(p.Narrative),
		Delta: Delta{
			Location:        strings.TrimSpace(p.Location),
			ItemsGained:     cleanItems(p.ItemsGained),
			ItemsLost:       cleanItems(p.ItemsLost),
			ItemsEquipped:   cleanItems(p.ItemsEquipped),
			ItemsDiscovered: cleanItems(p.ItemsDiscovered),
		},
	}
}

// stripCodeFences removes the markdown fences models sometimes wrap JSON in.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func cleanItems(items []string) []string {
	var out []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
