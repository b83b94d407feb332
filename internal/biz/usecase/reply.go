package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
)

// DefaultTemplate is used when a persona has no static template
const DefaultTemplate = "🎉 You rang? I'm here and listening!"

// DefaultMaxReplyChars is the soft length budget given to the model
const DefaultMaxReplyChars = 200

// DefaultCompletionTimeout bounds one completion call
const DefaultCompletionTimeout = 10 * time.Second

// ErrEmptyCompletion is reported when the model returns no text
var ErrEmptyCompletion = errors.New("empty completion")

// ReplyGenerator produces reply text for a cleaned trigger text
type ReplyGenerator interface {
	Generate(ctx context.Context, triggerText string) string
}

// StaticGenerator returns the persona template regardless of input
type StaticGenerator struct {
	persona domain.Persona
	rnd     *rand.Rand
}

// NewStaticGenerator creates a static generator.
// rnd drives persona decorations; nil disables them.
func NewStaticGenerator(persona domain.Persona, rnd *rand.Rand) *StaticGenerator {
	return &StaticGenerator{persona: persona, rnd: rnd}
}

// Generate returns the static reply
func (g *StaticGenerator) Generate(ctx context.Context, _ string) string {
	tmpl := g.persona.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	return g.persona.Style(tmpl, g.rnd)
}

// GenerativeGenerator asks a completion service for the reply and falls
// back to another generator when the call fails
type GenerativeGenerator struct {
	completion repo.CompletionRepo
	persona    domain.Persona
	fallback   ReplyGenerator
	maxChars   int
	timeout    time.Duration
	onFallback func(err error)
	logger     *slog.Logger
}

// NewGenerativeGenerator creates a generative generator
func NewGenerativeGenerator(
	completion repo.CompletionRepo,
	persona domain.Persona,
	fallback ReplyGenerator,
	logger *slog.Logger,
) *GenerativeGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerativeGenerator{
		completion: completion,
		persona:    persona,
		fallback:   fallback,
		maxChars:   DefaultMaxReplyChars,
		timeout:    DefaultCompletionTimeout,
		logger:     logger,
	}
}

// SetMaxReplyChars sets the soft length budget stated in the prompt
func (g *GenerativeGenerator) SetMaxReplyChars(n int) {
	if n > 0 {
		g.maxChars = n
	}
}

// SetTimeout bounds each completion call. Keep it well under the tick
// timeout so a fallback reply still has time to be sent.
func (g *GenerativeGenerator) SetTimeout(d time.Duration) {
	if d > 0 {
		g.timeout = d
	}
}

// OnFallback sets a callback invoked every time the fallback is used
func (g *GenerativeGenerator) OnFallback(fn func(err error)) {
	g.onFallback = fn
}

// Generate returns generated text, or the fallback text on any failure
func (g *GenerativeGenerator) Generate(ctx context.Context, triggerText string) string {
	if g.completion == nil {
		return g.useFallback(ctx, errors.New("no completion service configured"))
	}

	userMsg := triggerText
	if strings.TrimSpace(userMsg) == "" {
		userMsg = "(no message, they only mentioned you)"
	}

	completeCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply, err := g.completion.Complete(completeCtx, g.SystemPrompt(), userMsg)
	if err != nil {
		return g.useFallback(ctx, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return g.useFallback(ctx, ErrEmptyCompletion)
	}
	return reply
}

// SystemPrompt builds the persona instruction sent with every request
func (g *GenerativeGenerator) SystemPrompt() string {
	instruction := g.persona.Instruction
	if instruction == "" {
		instruction = fmt.Sprintf("You are %s, a friendly chat bot.", g.persona.Name)
	}
	return fmt.Sprintf("%s\nReply in plain text, in character, and keep it under %d characters.",
		instruction, g.maxChars)
}

func (g *GenerativeGenerator) useFallback(ctx context.Context, err error) string {
	g.logger.Warn("generation failed, using fallback", "persona", g.persona.Name, "error", err)
	if g.onFallback != nil {
		g.onFallback(err)
	}
	if g.fallback == nil {
		return DefaultTemplate
	}
	if text := g.fallback.Generate(ctx, ""); text != "" {
		return text
	}
	return DefaultTemplate
}
