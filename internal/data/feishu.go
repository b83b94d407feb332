package data

import (
	"context"
	"strconv"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
	"github.com/devricklin/mention-dispatch/internal/infra/feishu"
)

// feishuAPI is the subset of the Feishu client the room needs
type feishuAPI interface {
	AppID() string
	FetchBotInfo(ctx context.Context) (*feishu.BotInfo, error)
	GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*feishu.HistoryMessage, error)
	SendText(ctx context.Context, chatID, text string) (string, error)
	ReplyText(ctx context.Context, messageID, text string) (string, error)
}

// feishuRepo implements the Feishu room repository
type feishuRepo struct {
	client feishuAPI
}

// NewFeishuRepo creates a new Feishu room repository
func NewFeishuRepo(client feishuAPI) repo.RoomRepo {
	return &feishuRepo{client: client}
}

// FetchRecent gets the most recent chat messages, newest first
func (r *feishuRepo) FetchRecent(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	msgs, err := r.client.GetChatHistory(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		var createTime time.Time
		// Feishu timestamp is a millisecond string
		if ms, err := strconv.ParseInt(m.CreateTime, 10, 64); err == nil {
			createTime = time.UnixMilli(ms)
		}

		authorID := ""
		if m.Sender != nil {
			authorID = m.Sender.SenderID
		}

		result = append(result, domain.Message{
			ID:        m.MsgID,
			RoomID:    chatID,
			AuthorID:  authorID,
			Text:      m.Content,
			Timestamp: createTime,
		})
	}
	return result, nil
}

// SendMessage sends a text message, as a thread reply when InReplyTo is set
func (r *feishuRepo) SendMessage(ctx context.Context, chatID, text string, opts repo.SendOptions) (string, error) {
	if opts.InReplyTo != "" {
		return r.client.ReplyText(ctx, opts.InReplyTo, text)
	}
	return r.client.SendText(ctx, chatID, text)
}

// SelfIdentity gets the bot identity.
// History lists the bot's own messages under its app id, so that is the ID.
func (r *feishuRepo) SelfIdentity(ctx context.Context) (domain.Identity, error) {
	info, err := r.client.FetchBotInfo(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		ID:           r.client.AppID(),
		DisplayName:  info.AppName,
		MentionToken: "@" + info.AppName,
	}, nil
}

func (r *feishuRepo) SupportsThreads() bool {
	return true
}
