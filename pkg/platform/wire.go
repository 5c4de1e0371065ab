package platform

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/cadence/pkg/types"
)

type publishRequest struct {
	Caption      string   `json:"caption"`
	Kind         string   `json:"kind"`
	MediaURLs    []string `json:"media_urls,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
}

type textRequest struct {
	Text        string `json:"text"`
	RecipientID string `json:"recipient_id,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type wireComment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	ParentID   string    `json:"parent_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  timestamp `json:"created_at"`
}

func (w wireComment) toComment() types.Comment {
	return types.Comment{
		ID:         w.ID,
		PostID:     w.PostID,
		ParentID:   w.ParentID,
		AuthorID:   w.AuthorID,
		AuthorName: w.AuthorName,
		Text:       w.Text,
		CreatedAt:  time.Time(w.CreatedAt),
	}
}

type wireMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  timestamp `json:"created_at"`
}

type wireConversation struct {
	ID       string        `json:"id"`
	Messages []wireMessage `json:"messages"`
}

func (w wireConversation) toConversation() types.Conversation {
	conv := types.Conversation{ID: w.ID, Messages: make([]types.Message, 0, len(w.Messages))}
	for _, m := range w.Messages {
		conv.Messages = append(conv.Messages, types.Message{
			ID:         m.ID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Text:       m.Text,
			CreatedAt:  time.Time(m.CreatedAt),
		})
	}
	return conv
}

// timestampLayouts are tried in order. The second is the Graph API form
// with a numeric offset and no colon.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
}

// timestamp decodes the time formats platforms emit. Anything unparseable
// decodes to the zero time instead of failing the whole response.
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unix seconds
		var secs int64
		if json.Unmarshal(data, &secs) == nil && secs > 0 {
			*t = timestamp(time.Unix(secs, 0).UTC())
		}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = timestamp(parsed.UTC())
			return nil
		}
	}
	*t = timestamp{}
	return nil
}

// APIError is a non-2xx gateway response
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	prefix := ""
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		prefix = "rate limit exceeded: "
	case e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusBadGateway || e.StatusCode == http.StatusGatewayTimeout:
		prefix = "platform temporarily unavailable: "
	}
	if e.Code != "" {
		return fmt.Sprintf("%sgateway error %d (%s): %s", prefix, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%sgateway error %d: %s", prefix, e.StatusCode, e.Message)
}

// newAPIError builds an APIError from an error body of the form
// {"error": {"code": "...", "message": "..."}}, falling back to the raw body
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var wrapped struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Error.Message != "" {
		apiErr.Code = wrapped.Error.Code
		apiErr.Message = wrapped.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
