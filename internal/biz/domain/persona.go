package domain

import (
	"math/rand"
	"strings"
)

// Persona is the flavor a bot replies with
type Persona struct {
	Name        string
	Template    string   // Static reply
	Instruction string   // Style instruction for generated replies
	Prefixes    []string // Optional random openers
	Suffixes    []string // Optional random closers
}

// Handle returns the default @handle for the persona
func (p Persona) Handle() string {
	if p.Name == "" {
		return ""
	}
	return "@" + strings.ToLower(p.Name)
}

// Style decorates text with a random prefix and suffix.
// Output depends only on text and the state of rnd.
func (p Persona) Style(text string, rnd *rand.Rand) string {
	if rnd == nil || (len(p.Prefixes) == 0 && len(p.Suffixes) == 0) {
		return text
	}

	parts := make([]string, 0, 3)
	if len(p.Prefixes) > 0 {
		parts = append(parts, p.Prefixes[rnd.Intn(len(p.Prefixes))])
	}
	parts = append(parts, text)
	if len(p.Suffixes) > 0 {
		parts = append(parts, p.Suffixes[rnd.Intn(len(p.Suffixes))])
	}
	return strings.Join(parts, " ")
}
