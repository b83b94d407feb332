package domain

import (
	"regexp"
	"sort"
	"strings"
)

var spaceBeforePunct = regexp.MustCompile(`\s+([,.:;!?])`)

// Trigger detects messages directed at the bot.
// A message triggers when it contains any handle (e.g. "@echo") or the
// bot's structured mention token, compared case-insensitively.
type Trigger struct {
	tokens []string
	re     *regexp.Regexp
}

// NewTrigger builds a trigger from the bot identity and configured handles
func NewTrigger(self Identity, handles []string) *Trigger {
	seen := make(map[string]bool)
	var tokens []string
	for _, tok := range append(append([]string{}, handles...), self.MentionToken) {
		tok = strings.TrimSpace(tok)
		key := strings.ToLower(tok)
		if tok == "" || seen[key] {
			continue
		}
		seen[key] = true
		tokens = append(tokens, tok)
	}

	t := &Trigger{tokens: tokens}
	if len(tokens) == 0 {
		return t
	}

	// Longest first so "@echo-bot" wins over "@echo"
	sorted := append([]string{}, tokens...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, tok := range sorted {
		quoted[i] = regexp.QuoteMeta(tok)
	}
	t.re = regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
	return t
}

// Tokens returns the recognized trigger tokens
func (t *Trigger) Tokens() []string {
	return append([]string{}, t.tokens...)
}

// Match reports whether text is directed at the bot
func (t *Trigger) Match(text string) bool {
	if t.re == nil {
		return false
	}
	return t.re.MatchString(text)
}

// Strip removes mention tokens and returns the remaining request text
func (t *Trigger) Strip(text string) string {
	if t.re != nil {
		text = t.re.ReplaceAllString(text, " ")
	}
	text = strings.Join(strings.Fields(text), " ")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	return strings.TrimLeft(text, ",:; ")
}
