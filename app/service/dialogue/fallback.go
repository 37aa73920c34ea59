package dialogue

import (
	"avachat/app/config"
	"strings"
)

// FallbackClassifier decides whether a reply means the agent could not help.
// It is a heuristic: the phrase list and the length floor produce occasional
// false positives and negatives, which is accepted behavior.
type FallbackClassifier struct {
	minConfidence float64
	minLength     int
	phrases       []string
}

func NewFallbackClassifier(cfg config.Fallback) *FallbackClassifier {
	phrases := make([]string, 0, len(cfg.Phrases))
	for _, phrase := range cfg.Phrases {
		phrases = append(phrases, strings.ToLower(phrase))
	}

	return &FallbackClassifier{
		minConfidence: cfg.MinConfidence,
		minLength:     cfg.MinLength,
		phrases:       phrases,
	}
}

// IsFallback evaluates the rules in order, first hit wins: low confidence,
// then hand-off phrasing, then a suspiciously short reply.
func (c *FallbackClassifier) IsFallback(reply string, confidence *float64) bool {
	if confidence != nil && *confidence < c.minConfidence {
		return true
	}

	lowered := strings.ToLower(reply)
	for _, phrase := range c.phrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}

	return len(strings.TrimSpace(reply)) < c.minLength
}
