package game

import (
	"fmt"
	"strings"
	"unicode"

	"fableroom/internal/narrative"
)

// commandClass buckets an action by its item mechanics. Pickup and
// equip/unequip are resolved locally against session state; everything else
// defers to whatever delta the engine proposed.
type commandClass int

const (
	commandOther commandClass = iota
	commandPickup
	commandEquip
	commandUnequip
)

var (
	pickupVerbs  = []string{"pick up", "take", "grab"}
	equipVerbs   = []string{"equip", "wield", "wear"}
	unequipVerbs = []string{"unequip", "unwield", "stow"}
)

// classifyCommand detects item-command verbs at the start of an action and
// returns the remaining words as the target phrase.
func classifyCommand(action string) (commandClass, string) {
	lower := strings.ToLower(strings.TrimSpace(action))
	for _, verb := range pickupVerbs {
		if rest, ok := cutVerb(lower, verb); ok {
			return commandPickup, rest
		}
	}
	for _, verb := range unequipVerbs {
		if rest, ok := cutVerb(lower, verb); ok {
			return commandUnequip, rest
		}
	}
	for _, verb := range equipVerbs {
		if rest, ok := cutVerb(lower, verb); ok {
			return commandEquip, rest
		}
	}
	return commandOther, ""
}

// cutVerb strips verb from the front of the action, requiring a word
// boundary so "takeoff" is not a pickup.
func cutVerb(action, verb string) (string, bool) {
	if action == verb {
		return "", true
	}
	if strings.HasPrefix(action, verb+" ") {
		return stripArticles(strings.TrimSpace(action[len(verb):])), true
	}
	return "", false
}

func stripArticles(phrase string) string {
	for _, article := range []string{"the ", "a ", "an ", "my "} {
		if strings.HasPrefix(phrase, article) {
			return strings.TrimSpace(phrase[len(article):])
		}
	}
	return phrase
}

// itemStopwords never count toward a token-overlap match.
var itemStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true,
}

func itemTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	var tokens []string
	for _, f := range fields {
		if !itemStopwords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// tokenOverlap reports whether two item phrases share at least one
// meaningful token ("rusty torch" matches "torch").
func tokenOverlap(a, b string) bool {
	seen := map[string]bool{}
	for _, t := range itemTokens(a) {
		seen[t] = true
	}
	for _, t := range itemTokens(b) {
		if seen[t] {
			return true
		}
	}
	return false
}

// matchItem resolves a target phrase against a list: exact normalized match
// first, then substring either way, then token overlap. Returns the stored
// entry so callers move the canonical spelling, not the player's.
func matchItem(items []string, target string) (string, bool) {
	want := normalizeItem(target)
	if want == "" {
		return "", false
	}
	for _, item := range items {
		if normalizeItem(item) == want {
			return item, true
		}
	}
	for _, item := range items {
		have := normalizeItem(item)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return item, true
		}
	}
	for _, item := range items {
		if tokenOverlap(item, target) {
			return item, true
		}
	}
	return "", false
}

// resolvePickup picks the discovered item a pickup command refers to. A bare
// "take" with no target grabs the first discovered entry.
func resolvePickup(discovered []string, target string) (string, bool) {
	if len(discovered) == 0 {
		return "", false
	}
	if strings.TrimSpace(target) == "" {
		return discovered[0], true
	}
	return matchItem(discovered, target)
}

// reconcile folds the engine's proposed outcome into the session according
// to the command class. It appends the resulting narration to history but
// does not advance the turn; that is the caller's job.
func reconcile(s Session, actor Player, action string, out narrative.Outcome) Session {
	class, target := classifyCommand(action)
	line := out.Narrative

	switch class {
	case commandPickup:
		item, ok := resolvePickup(s.Discovered, target)
		if !ok {
			line = narrative.NothingToPickUp
			break
		}
		s.Discovered, _ = removeItem(s.Discovered, item)
		s.Inventory[actor.ID] = addItem(s.Inventory[actor.ID], item)
		if line == "" {
			line = fmt.Sprintf("%s takes the %s.", actor.Name, item)
		} else {
			line = fmt.Sprintf("%s (%s takes the %s.)", line, actor.Name, item)
		}

	case commandEquip:
		item, ok := matchItem(s.Inventory[actor.ID], target)
		if !ok {
			line = fmt.Sprintf("You aren't carrying %s.", describeTarget(target))
			break
		}
		s.Inventory[actor.ID], _ = removeItem(s.Inventory[actor.ID], item)
		s.Equipped[actor.ID] = addItem(s.Equipped[actor.ID], item)
		line = fmt.Sprintf("%s equips the %s.", actor.Name, item)

	case commandUnequip:
		item, ok := matchItem(s.Equipped[actor.ID], target)
		if !ok {
			line = fmt.Sprintf("You don't have %s equipped.", describeTarget(target))
			break
		}
		s.Equipped[actor.ID], _ = removeItem(s.Equipped[actor.ID], item)
		s.Inventory[actor.ID] = addItem(s.Inventory[actor.ID], item)
		line = fmt.Sprintf("%s stows the %s.", actor.Name, item)

	default:
		if out.Kind == narrative.KindStructured {
			s = applyDelta(s, actor.ID, out.Delta)
		}
	}

	if line != "" {
		s.appendHistory(line)
	}
	return s
}

// applyDelta applies an engine-proposed delta for a non-item command: gains
// and losses as set union/difference on the actor's inventory, equips moved
// when present, discoveries appended once, location replaced only when the
// engine reported one.
func applyDelta(s Session, actorID string, delta narrative.Delta) Session {
	for _, item := range delta.ItemsDiscovered {
		if _, known := matchItem(s.Discovered, item); known {
			continue
		}
		if containsItem(s.Inventory[actorID], item) {
			continue
		}
		s.Discovered = addItem(s.Discovered, item)
	}
	for _, item := range delta.ItemsGained {
		s.Inventory[actorID] = addItem(s.Inventory[actorID], item)
	}
	for _, item := range delta.ItemsLost {
		s.Inventory[actorID], _ = removeItem(s.Inventory[actorID], item)
	}
	for _, item := range delta.ItemsEquipped {
		if matched, ok := matchItem(s.Inventory[actorID], item); ok {
			s.Inventory[actorID], _ = removeItem(s.Inventory[actorID], matched)
			s.Equipped[actorID] = addItem(s.Equipped[actorID], matched)
		}
	}
	if delta.Location != "" {
		s.Location = delta.Location
	}
	return s
}

func describeTarget(target string) string {
	if strings.TrimSpace(target) == "" {
		return "that"
	}
	return fmt.Sprintf("a %s", strings.TrimSpace(target))
}
