// Package ports declares the narrow interfaces Cadence uses to reach its
// external collaborators: text generation, media generation and storage,
// and the social platforms themselves.
package ports

import (
	"context"
	"time"

	"github.com/cuemby/cadence/pkg/types"
)

// ContentGenerator produces text from a prompt
type ContentGenerator interface {
	// Generate returns generated text for prompt. background is optional
	// background the model may use (commenter, thread history).
	Generate(ctx context.Context, prompt, background string) (string, error)
}

// MediaGenerator materializes durable public media URLs
type MediaGenerator interface {
	// GenerateImage creates an image for prompt and returns its public URL.
	// sizing is a hint such as "feed" or "square".
	GenerateImage(ctx context.Context, prompt, sizing string) (string, error)

	// Upload stores raw media (a data URL or plain bytes) and returns its public URL.
	Upload(ctx context.Context, raw string) (string, error)
}

// PublishRequest is a rendered post ready for a platform
type PublishRequest struct {
	Caption      string
	MediaURLs    []string
	ThumbnailURL string
	Kind         types.MediaKind
}

// Publisher writes to a social platform
type Publisher interface {
	// Publish creates a post and returns the platform-assigned id
	Publish(ctx context.Context, cred types.Credential, req PublishRequest) (string, error)

	// Reply answers a comment or thread and returns the reply id
	Reply(ctx context.Context, cred types.Credential, targetID, text string) (string, error)

	// SendMessage sends a direct message in a conversation and returns its id
	SendMessage(ctx context.Context, cred types.Credential, conversationID, recipientID, text string) (string, error)
}

// Reader reads audience engagement from a social platform
type Reader interface {
	// ListComments returns comments on postID created after since.
	// Implementations may return older comments; callers filter again.
	ListComments(ctx context.Context, cred types.Credential, postID string, since time.Time) ([]types.Comment, error)

	// GetComment returns a single comment, used to inspect reply parents
	GetComment(ctx context.Context, cred types.Credential, commentID string) (*types.Comment, error)

	// ListPosts returns the platform ids of the account's recent posts
	ListPosts(ctx context.Context, cred types.Credential) ([]string, error)

	// ListConversations returns recent direct message conversations
	ListConversations(ctx context.Context, cred types.Credential) ([]types.Conversation, error)
}
