package domain

import "fmt"

// Identity is the bot's own identity in a room (value object)
type Identity struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	MentionToken string `json:"mention_token"` // Structured mention marker, e.g. <@U123> on Slack
}

// FormatDisplay formats for display
func (i Identity) FormatDisplay() string {
	return fmt.Sprintf("%s (id: %s)", i.DisplayName, i.ID)
}
