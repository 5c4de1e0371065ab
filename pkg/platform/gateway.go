package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/ports"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/rs/zerolog"
)

// maxResponseBytes bounds how much of a gateway response is read
const maxResponseBytes = 4 << 20

// Config configures the gateway client
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Gateway talks to the posting gateway that fronts the social platforms.
// It implements ports.Publisher and ports.Reader.
type Gateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

var (
	_ ports.Publisher = (*Gateway)(nil)
	_ ports.Reader    = (*Gateway)(nil)
)

// NewGateway creates a gateway client
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("gateway URL is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Gateway{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.WithComponent("platform"),
	}, nil
}

// Publish creates a post on the credential's account
func (g *Gateway) Publish(ctx context.Context, cred types.Credential, req ports.PublishRequest) (string, error) {
	body := publishRequest{
		Caption:      req.Caption,
		Kind:         string(req.Kind),
		MediaURLs:    req.MediaURLs,
		ThumbnailURL: req.ThumbnailURL,
	}
	var resp idResponse
	path := fmt.Sprintf("/v1/%s/accounts/%s/posts", cred.Platform, url.PathEscape(cred.PlatformUserID))
	if err := g.do(ctx, http.MethodPost, path, cred, body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("gateway returned no post id")
	}

	g.logger.Info().
		Str("platform", string(cred.Platform)).
		Str("account_id", cred.AccountID).
		Str("platform_post_id", resp.ID).
		Msg("Post published")
	return resp.ID, nil
}

// Reply answers a comment or thread
func (g *Gateway) Reply(ctx context.Context, cred types.Credential, targetID, text string) (string, error) {
	var resp idResponse
	path := fmt.Sprintf("/v1/%s/comments/%s/replies", cred.Platform, url.PathEscape(targetID))
	if err := g.do(ctx, http.MethodPost, path, cred, textRequest{Text: text}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// SendMessage sends a direct message
func (g *Gateway) SendMessage(ctx context.Context, cred types.Credential, conversationID, recipientID, text string) (string, error) {
	var resp idResponse
	path := fmt.Sprintf("/v1/%s/conversations/%s/messages", cred.Platform, url.PathEscape(conversationID))
	body := textRequest{Text: text, RecipientID: recipientID}
	if err := g.do(ctx, http.MethodPost, path, cred, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ListComments returns comments on postID. since is passed to the gateway
// as a hint only.
func (g *Gateway) ListComments(ctx context.Context, cred types.Credential, postID string, since time.Time) ([]types.Comment, error) {
	path := fmt.Sprintf("/v1/%s/posts/%s/comments", cred.Platform, url.PathEscape(postID))
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	var resp listResponse[wireComment]
	if err := g.do(ctx, http.MethodGet, path, cred, nil, &resp); err != nil {
		return nil, err
	}

	comments := make([]types.Comment, 0, len(resp.Data))
	for _, c := range resp.Data {
		comment := c.toComment()
		if comment.PostID == "" {
			comment.PostID = postID
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// GetComment returns one comment
func (g *Gateway) GetComment(ctx context.Context, cred types.Credential, commentID string) (*types.Comment, error) {
	var resp wireComment
	path := fmt.Sprintf("/v1/%s/comments/%s", cred.Platform, url.PathEscape(commentID))
	if err := g.do(ctx, http.MethodGet, path, cred, nil, &resp); err != nil {
		return nil, err
	}
	comment := resp.toComment()
	return &comment, nil
}

// ListPosts returns the platform ids of the account's recent posts
func (g *Gateway) ListPosts(ctx context.Context, cred types.Credential) ([]string, error) {
	var resp listResponse[idResponse]
	path := fmt.Sprintf("/v1/%s/accounts/%s/posts", cred.Platform, url.PathEscape(cred.PlatformUserID))
	if err := g.do(ctx, http.MethodGet, path, cred, nil, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// ListConversations returns recent direct message conversations
func (g *Gateway) ListConversations(ctx context.Context, cred types.Credential) ([]types.Conversation, error) {
	var resp listResponse[wireConversation]
	path := fmt.Sprintf("/v1/%s/accounts/%s/conversations", cred.Platform, url.PathEscape(cred.PlatformUserID))
	if err := g.do(ctx, http.MethodGet, path, cred, nil, &resp); err != nil {
		return nil, err
	}

	conversations := make([]types.Conversation, 0, len(resp.Data))
	for _, c := range resp.Data {
		conversations = append(conversations, c.toConversation())
	}
	return conversations, nil
}

// do sends one JSON request and decodes the response into out
func (g *Gateway) do(ctx context.Context, method, path string, cred types.Credential, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	req.Header.Set("X-Access-Token", cred.AccessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// Keep context errors matchable for timeout classification
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
