package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// DefaultBaseURL is the Feishu Open API host
var DefaultBaseURL = lark.FeishuBaseUrl

// maxPageSize is the largest page the message list API accepts
const maxPageSize = 50

// HistoryMessage represents a message from chat history
type HistoryMessage struct {
	MsgID      string
	MsgType    string
	Content    string // Text with @_user_N placeholders resolved to @Name
	CreateTime string // Milliseconds since epoch
	Sender     *Sender
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id for users, app_id for bots
	SenderType string // user, app
}

// BotInfo is the bot's own identity
type BotInfo struct {
	OpenID  string
	AppName string
}

// Client is the Feishu API client
type Client struct {
	appID      string
	appSecret  string
	baseURL    string
	larkCli    *lark.Client
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Feishu client. An empty baseURL means DefaultBaseURL.
func NewClient(appID, appSecret, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		appID:      appID,
		appSecret:  appSecret,
		baseURL:    baseURL,
		larkCli:    lark.NewClient(appID, appSecret, lark.WithOpenBaseUrl(baseURL)),
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

// AppID returns the app id the client authenticates as
func (c *Client) AppID() string {
	return c.appID
}

// FetchBotInfo fetches the bot's own open_id and name.
// The SDK has no typed call for bot/v3/info, so it goes through raw HTTP.
func (c *Client) FetchBotInfo(ctx context.Context) (*BotInfo, error) {
	token, err := c.tenantAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/open-apis/bot/v3/info", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get bot info: %w", err)
	}
	defer resp.Body.Close()

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&botResult); err != nil {
		return nil, fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return nil, fmt.Errorf("bot info API error: %s", botResult.Msg)
	}

	c.logger.Info("feishu bot identity", "open_id", botResult.Bot.OpenID, "name", botResult.Bot.AppName)
	return &BotInfo{OpenID: botResult.Bot.OpenID, AppName: botResult.Bot.AppName}, nil
}

func (c *Client) tenantAccessToken(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{"app_id": c.appID, "app_secret": c.appSecret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/open-apis/auth/v3/tenant_access_token/internal", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	defer resp.Body.Close()

	var tokenResult struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResult); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tokenResult.Code != 0 {
		return "", fmt.Errorf("token API error: %s", tokenResult.Msg)
	}
	return tokenResult.TenantAccessToken, nil
}

// GetChatHistory retrieves the most recent messages of a chat, newest first.
// pageSize is capped at 50.
func (c *Client) GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*HistoryMessage, error) {
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	// The API defaults to ascending order, which starts at the chat's creation
	req := larkim.NewListMessageReqBuilder().
		ContainerIdType("chat").
		ContainerId(chatID).
		SortType("ByCreateTimeDesc").
		PageSize(pageSize).
		Build()

	resp, err := c.larkCli.Im.Message.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat history failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat history error: %s", resp.Msg)
	}

	messages := make([]*HistoryMessage, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		if item.MessageId == nil {
			continue
		}
		msg := &HistoryMessage{
			MsgID:      *item.MessageId,
			MsgType:    deref(item.MsgType),
			CreateTime: deref(item.CreateTime),
		}

		mentionMap := make(map[string]string)
		for _, mention := range item.Mentions {
			if mention.Key != nil && mention.Name != nil {
				mentionMap[*mention.Key] = *mention.Name
			}
		}
		if item.Body != nil && item.Body.Content != nil {
			msg.Content = ParseContent(msg.MsgType, *item.Body.Content, mentionMap)
		}

		if item.Sender != nil {
			msg.Sender = &Sender{
				SenderID:   deref(item.Sender.Id),
				SenderType: deref(item.Sender.SenderType),
			}
		}
		messages = append(messages, msg)
	}

	c.logger.Debug("feishu history fetched", "chat_id", chatID, "count", len(messages))
	return messages, nil
}

// SendText sends a text message to a chat and returns its message id
func (c *Client) SendText(ctx context.Context, chatID, text string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(textContent(text)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("send message error: %s", resp.Msg)
	}

	if resp.Data == nil {
		return "", nil
	}
	return deref(resp.Data.MessageId), nil
}

// ReplyText replies to a message in its thread and returns the reply id
func (c *Client) ReplyText(ctx context.Context, messageID, text string) (string, error) {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeText).
			Content(textContent(text)).
			ReplyInThread(true).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return "", fmt.Errorf("reply message failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("reply message error: %s", resp.Msg)
	}

	if resp.Data == nil {
		return "", nil
	}
	return deref(resp.Data.MessageId), nil
}

// ParseContent extracts plain text from a message body.
// Mention placeholders (@_user_1) are replaced with @Name.
func ParseContent(msgType, rawContent string, mentionMap map[string]string) string {
	switch msgType {
	case "text":
		var parsed struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(rawContent), &parsed); err != nil {
			return ""
		}
		return replaceMentions(parsed.Text, mentionMap)
	case "post":
		return parsePostContent(rawContent, mentionMap)
	case "image":
		return "[Image]"
	case "file":
		return "[File]"
	case "sticker":
		return "[Sticker]"
	case "interactive":
		return "[Card Message]"
	}
	return rawContent
}

func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			UserID string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var lines []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var b strings.Builder
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				b.WriteString(elem.Text)
			case "at":
				if name, ok := mentionMap[elem.UserID]; ok {
					b.WriteString("@" + name)
				} else if elem.UserID != "" {
					b.WriteString("@" + elem.UserID)
				}
			}
		}
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}
	return replaceMentions(strings.Join(lines, "\n"), mentionMap)
}

func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

func textContent(text string) string {
	b, _ := json.Marshal(map[string]string{"text": text})
	return string(b)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
