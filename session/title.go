package session

import "strings"

// DefaultTitle is the session title before the first user turn names it.
const DefaultTitle = "New conversation"

// titleBudget is the maximum title length in runes before truncation.
const titleBudget = 20

// DeriveTitle builds a short session title from the first user message:
// the trimmed text, truncated to a fixed rune budget with an ellipsis
// marker when it is longer.
func DeriveTitle(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return DefaultTitle
	}
	runes := []rune(trimmed)
	if len(runes) <= titleBudget {
		return trimmed
	}
	return string(runes[:titleBudget]) + "..."
}
