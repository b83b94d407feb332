package data

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/devricklin/mention-dispatch/internal/biz/repo"
	"github.com/devricklin/mention-dispatch/internal/conf"
	"github.com/devricklin/mention-dispatch/internal/infra/feishu"
)

// Repositories contains all repositories
type Repositories struct {
	Room       repo.RoomRepo
	Completion repo.CompletionRepo // nil when generation is disabled
	Journal    repo.JournalRepo    // nil when the journal is disabled

	// RoomID is the resolved room id
	RoomID string
}

// NewRepositories creates all repositories for the configured platform.
// A "#name" room is resolved to its id once here.
func NewRepositories(ctx context.Context, cfg *conf.Config, logger *slog.Logger) (*Repositories, error) {
	room, err := NewRoomRepo(cfg, logger)
	if err != nil {
		return nil, err
	}

	roomID := cfg.Room
	if resolver, ok := room.(repo.RoomResolver); ok {
		if roomID, err = resolver.ResolveRoom(ctx, cfg.Room); err != nil {
			return nil, fmt.Errorf("resolve room %s: %w", cfg.Room, err)
		}
		if roomID != cfg.Room {
			logger.Info("room resolved", "room", cfg.Room, "id", roomID)
		}
	}

	repos := &Repositories{
		Room:   NewRateLimitedRoom(room, cfg.Dispatch.SendRatePerSec),
		RoomID: roomID,
	}

	if cfg.GenerativeEnabled() {
		repos.Completion = NewOpenAIRepo(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	}

	if cfg.Journal.DBPath != "" {
		journal, err := NewJournalRepo(cfg.Journal.DBPath)
		if err != nil {
			return nil, err
		}
		repos.Journal = journal
	}

	return repos, nil
}

// NewRoomRepo creates the room repository of the configured platform
func NewRoomRepo(cfg *conf.Config, logger *slog.Logger) (repo.RoomRepo, error) {
	switch cfg.Platform {
	case conf.PlatformSlack:
		return NewSlackRepo(NewSlackClient(cfg.Slack.BotToken, cfg.Slack.APIURL)), nil
	case conf.PlatformFeishu:
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, "", logger)
		return NewFeishuRepo(client), nil
	case conf.PlatformGitHub:
		client, err := NewGitHubClient(http.DefaultClient, cfg.GitHub.Token, cfg.GitHub.APIURL)
		if err != nil {
			return nil, err
		}
		return NewGitHubRepo(client, logger), nil
	}
	return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
}

// Close releases repository resources
func (r *Repositories) Close() error {
	if r.Journal != nil {
		return r.Journal.Close()
	}
	return nil
}
