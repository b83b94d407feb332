package repo

import "context"

// CompletionRepo is the text generation interface
type CompletionRepo interface {
	// Complete returns the model's answer for a system instruction and user text
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}
