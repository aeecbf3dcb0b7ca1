// Package budget bounds the size of text handed to the generative model.
//
// Retrieved context is capped by a character budget measured in runes, so a
// cut never splits a multi-byte character. Token counts are only estimated,
// using a conservative heuristic of 1 token ≈ 4 characters, because the
// supported backends all tokenize differently.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultContextBudget is the default maximum length of the merged
	// retrieval context, in characters.
	DefaultContextBudget = 1200
)

// Truncate returns the first maxChars runes of s. A non-positive maxChars
// returns the empty string. Strings already within budget are returned as is.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if len(s) <= maxChars {
		// Byte length bounds rune count.
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}

// Len returns the length of s in characters as Truncate counts them.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}
