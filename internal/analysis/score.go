package analysis

import (
	"strings"
)

// UrgentThreshold is the minimum confidence for advice to count as urgent
const UrgentThreshold = 0.7

var gameTerms = []string{"ability", "enemy", "health", "mana", "dodge", "attack", "position"}

var urgentKeywords = []string{
	"danger", "urgent", "immediately", "now", "quickly", "fast", "critical",
	"low health", "low hp", "dying", "escape", "run", "dodge", "avoid",
	"move", "retreat", "heal", "potion", "boss", "elite", "powerful enemy",
	"dangerous",
}

// Score estimates confidence from the shape of the advice text
func Score(advice string) float64 {
	if len(advice) < 10 {
		return 0.1
	}

	confidence := 0.5
	if len(advice) > 50 {
		confidence += 0.2
	}
	if len(advice) > 100 {
		confidence += 0.1
	}

	lower := strings.ToLower(advice)
	matches := 0
	for _, term := range gameTerms {
		if strings.Contains(lower, term) {
			matches++
		}
	}
	confidence += min(float64(matches)*0.05, 0.2)

	return min(max(confidence, 0), 1)
}

// IsUrgent reports whether advice should interrupt the player
func IsUrgent(advice string, confidence float64) bool {
	if confidence < UrgentThreshold {
		return false
	}
	lower := strings.ToLower(advice)
	for _, kw := range urgentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
