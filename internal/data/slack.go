package data

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
)

// slackPageSize is the largest page conversations.history accepts
const slackPageSize = 200

// slackRepo implements the Slack room repository
type slackRepo struct {
	client *slack.Client

	// Set by SelfIdentity; bot posts may carry only a bot id
	selfUserID string
	selfBotID  string
}

// NewSlackClient creates a Slack Web API client.
// apiURL overrides https://slack.com/api/ and must end with a slash.
func NewSlackClient(token, apiURL string) *slack.Client {
	if apiURL == "" {
		return slack.New(token)
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return slack.New(token, slack.OptionAPIURL(apiURL))
}

// NewSlackRepo creates a new Slack room repository
func NewSlackRepo(client *slack.Client) repo.RoomRepo {
	return &slackRepo{client: client}
}

// FetchRecent gets the most recent channel messages, newest first
func (r *slackRepo) FetchRecent(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	resp, err := r.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.history: %w", err)
	}
	return r.convert(channelID, resp.Messages), nil
}

// FetchSince pages through messages newer than afterID, newest first.
// When more than max arrived, the newest max are kept.
func (r *slackRepo) FetchSince(ctx context.Context, channelID, afterID string, max int) ([]domain.Message, error) {
	var out []domain.Message
	cursor := ""
	for len(out) < max {
		pageSize := max - len(out)
		if pageSize > slackPageSize {
			pageSize = slackPageSize
		}

		resp, err := r.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Oldest:    afterID,
			Inclusive: false,
			Limit:     pageSize,
			Cursor:    cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("conversations.history since %s: %w", afterID, err)
		}

		out = append(out, r.convert(channelID, resp.Messages)...)
		cursor = resp.ResponseMetaData.NextCursor
		if !resp.HasMore || cursor == "" {
			break
		}
	}

	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// SendMessage posts text, as a thread reply when InReplyTo is set.
// The returned id is the new message ts.
func (r *slackRepo) SendMessage(ctx context.Context, channelID, text string, opts repo.SendOptions) (string, error) {
	msgOpts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if opts.InReplyTo != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(opts.InReplyTo))
	}

	_, ts, err := r.client.PostMessageContext(ctx, channelID, msgOpts...)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage: %w", err)
	}
	return ts, nil
}

// SelfIdentity gets the bot identity via auth.test
func (r *slackRepo) SelfIdentity(ctx context.Context) (domain.Identity, error) {
	resp, err := r.client.AuthTestContext(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("auth.test: %w", err)
	}

	r.selfUserID = resp.UserID
	r.selfBotID = resp.BotID
	return domain.Identity{
		ID:           resp.UserID,
		DisplayName:  resp.User,
		MentionToken: "<@" + resp.UserID + ">",
	}, nil
}

func (r *slackRepo) SupportsThreads() bool {
	return true
}

// ResolveRoom maps "#name" to a channel id; anything else is taken as an id
func (r *slackRepo) ResolveRoom(ctx context.Context, nameOrID string) (string, error) {
	name, ok := strings.CutPrefix(nameOrID, "#")
	if !ok {
		return nameOrID, nil
	}

	cursor := ""
	for {
		channels, next, err := r.client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: true,
			Limit:           slackPageSize,
			Types:           []string{"public_channel", "private_channel"},
		})
		if err != nil {
			return "", fmt.Errorf("conversations.list: %w", err)
		}
		for _, ch := range channels {
			if strings.EqualFold(ch.Name, name) {
				return ch.ID, nil
			}
		}
		if next == "" {
			return "", fmt.Errorf("channel #%s not found or bot is not a member", name)
		}
		cursor = next
	}
}

func (r *slackRepo) convert(channelID string, msgs []slack.Message) []domain.Message {
	result := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		authorID := m.User
		if authorID == "" {
			authorID = m.BotID
		}
		if r.selfBotID != "" && m.BotID == r.selfBotID {
			authorID = r.selfUserID
		}

		result = append(result, domain.Message{
			ID:        m.Timestamp,
			RoomID:    channelID,
			AuthorID:  authorID,
			Text:      m.Text,
			Timestamp: parseSlackTS(m.Timestamp),
		})
	}
	return result
}

// parseSlackTS parses "1700000000.000100" (seconds.microseconds)
func parseSlackTS(ts string) time.Time {
	secPart, microPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}
	}
	micro, _ := strconv.ParseInt(microPart, 10, 64)
	return time.Unix(sec, micro*int64(time.Microsecond))
}
