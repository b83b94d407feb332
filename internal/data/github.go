package data

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v69/github"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
)

// githubMaxPerPage is the largest page the REST API accepts
const githubMaxPerPage = 100

// githubRepo implements a room over the comment thread of one issue or
// pull request. Rooms are addressed as "owner/repo#number".
type githubRepo struct {
	client *gogithub.Client
	logger *slog.Logger
}

// NewGitHubClient creates a go-github client. A non-empty baseURL selects
// a GitHub Enterprise server.
func NewGitHubClient(httpClient *http.Client, token, baseURL string) (*gogithub.Client, error) {
	client := gogithub.NewClient(httpClient).WithAuthToken(token)
	if baseURL == "" {
		return client, nil
	}
	client, err := client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("github enterprise url: %w", err)
	}
	return client, nil
}

// NewGitHubRepo creates a new GitHub issue-thread room repository
func NewGitHubRepo(client *gogithub.Client, logger *slog.Logger) repo.RoomRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &githubRepo{client: client, logger: logger}
}

// parseIssueRoom splits "owner/repo#number"
func parseIssueRoom(room string) (owner, name string, number int, err error) {
	repoPart, numPart, ok := strings.Cut(room, "#")
	if !ok {
		return "", "", 0, fmt.Errorf("invalid room %q: expected owner/repo#number", room)
	}
	owner, name, ok = strings.Cut(repoPart, "/")
	if !ok || owner == "" || name == "" {
		return "", "", 0, fmt.Errorf("invalid room %q: expected owner/repo#number", room)
	}
	number, err = strconv.Atoi(numPart)
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("invalid room %q: bad issue number", room)
	}
	return owner, name, number, nil
}

// FetchRecent gets the newest comments of the thread, newest first.
// The API lists comments oldest first, so the tail pages are read.
func (r *githubRepo) FetchRecent(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	owner, name, number, err := parseIssueRoom(room)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > githubMaxPerPage {
		limit = githubMaxPerPage
	}

	list := func(page int) ([]*gogithub.IssueComment, *gogithub.Response, error) {
		comments, resp, err := r.client.Issues.ListComments(ctx, owner, name, number, &gogithub.IssueListCommentsOptions{
			ListOptions: gogithub.ListOptions{Page: page, PerPage: limit},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("list comments: %w", err)
		}
		r.checkRateLimit(resp)
		return comments, resp, nil
	}

	comments, resp, err := list(1)
	if err != nil {
		return nil, err
	}

	if last := resp.LastPage; last > 1 {
		tail, _, err := list(last)
		if err != nil {
			return nil, err
		}
		// A short last page is topped up from the page before it
		if len(tail) < limit {
			prev := comments
			if last-1 > 1 {
				if prev, _, err = list(last - 1); err != nil {
					return nil, err
				}
			}
			tail = append(prev, tail...)
		}
		comments = tail
	}

	if len(comments) > limit {
		comments = comments[len(comments)-limit:]
	}

	result := make([]domain.Message, 0, len(comments))
	for i := len(comments) - 1; i >= 0; i-- {
		result = append(result, convertComment(room, comments[i]))
	}
	return result, nil
}

// SendMessage posts a comment. Threads are not supported, InReplyTo is ignored.
func (r *githubRepo) SendMessage(ctx context.Context, room, text string, _ repo.SendOptions) (string, error) {
	owner, name, number, err := parseIssueRoom(room)
	if err != nil {
		return "", err
	}

	comment, resp, err := r.client.Issues.CreateComment(ctx, owner, name, number, &gogithub.IssueComment{
		Body: gogithub.Ptr(text),
	})
	if err != nil {
		return "", fmt.Errorf("create comment: %w", err)
	}
	r.checkRateLimit(resp)
	return strconv.FormatInt(comment.GetID(), 10), nil
}

// SelfIdentity gets the authenticated user
func (r *githubRepo) SelfIdentity(ctx context.Context) (domain.Identity, error) {
	user, resp, err := r.client.Users.Get(ctx, "")
	if err != nil {
		return domain.Identity{}, fmt.Errorf("get authenticated user: %w", err)
	}
	r.checkRateLimit(resp)

	login := user.GetLogin()
	display := user.GetName()
	if display == "" {
		display = login
	}
	return domain.Identity{
		ID:           login,
		DisplayName:  display,
		MentionToken: "@" + login,
	}, nil
}

func (r *githubRepo) SupportsThreads() bool {
	return false
}

// checkRateLimit logs a warning when remaining API calls drop below threshold
func (r *githubRepo) checkRateLimit(resp *gogithub.Response) {
	if resp == nil {
		return
	}
	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		r.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset", resp.Rate.Reset.Time,
		)
	}
}

func convertComment(room string, c *gogithub.IssueComment) domain.Message {
	return domain.Message{
		ID:        strconv.FormatInt(c.GetID(), 10),
		RoomID:    room,
		AuthorID:  c.GetUser().GetLogin(),
		Text:      c.GetBody(),
		Timestamp: c.GetCreatedAt().Time,
	}
}
