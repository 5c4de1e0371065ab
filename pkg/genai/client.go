package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by every call when no API key is set
var ErrNotConfigured = errors.New("content generator not configured")

const (
	defaultModel      = "gpt-4o-mini"
	defaultImageModel = openai.CreateImageModelDallE3

	replyMaxTokens   = 150
	replyTemperature = 0.6
)

// systemPrompt frames every text generation as a short social reply
const systemPrompt = `You are a friendly social media manager replying on behalf of a brand.

Guidelines:
- Be warm, professional and helpful
- Keep responses under 200 characters
- Acknowledge the person's input
- Use emojis sparingly

Output only the reply text.`

// Config configures the OpenAI-compatible backend
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	ImageModel        string
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client generates text and images through an OpenAI-compatible API.
// All requests share one token bucket.
type Client struct {
	client  *openai.Client
	limiter *rate.Limiter
	cfg     Config
	logger  zerolog.Logger
}

// NewClient creates a client. An empty API key yields a client whose
// calls fail with ErrNotConfigured.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = defaultImageModel
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	c := &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), max(1, cfg.RequestsPerMinute/10)),
		logger:  log.WithComponent("genai"),
	}

	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		c.client = openai.NewClientWithConfig(oc)
	}
	return c
}

// Configured reports whether the client has credentials
func (c *Client) Configured() bool {
	return c.client != nil
}

// Generate returns a chat completion for prompt. background, when set, is
// passed as a separate context message.
func (c *Client) Generate(ctx context.Context, prompt, background string) (string, error) {
	if c.client == nil {
		return "", ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.record("generate", err)
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if background != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Context: " + background,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	})
	if err != nil {
		err = translate(err)
		c.record("generate", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("no response choices")
		c.record("generate", err)
		return "", err
	}

	c.record("generate", nil)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CreateImage generates one image for prompt and returns its decoded bytes.
// sizing is a hint such as "feed", "story" or "landscape".
func (c *Client) CreateImage(ctx context.Context, prompt, sizing string) ([]byte, error) {
	if c.client == nil {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.record("image", err)
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         EnhancePrompt(prompt),
		Model:          c.cfg.ImageModel,
		N:              1,
		Size:           ImageSize(sizing),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		err = translate(err)
		c.record("image", err)
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		err := errors.New("image generation returned no image")
		c.record("image", err)
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		c.record("image", err)
		return nil, fmt.Errorf("decode generated image: %w", err)
	}

	c.record("image", nil)
	c.logger.Debug().Str("sizing", sizing).Int("bytes", len(data)).Msg("Image generated")
	return data, nil
}

func (c *Client) record(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GenAIRequestsTotal.WithLabelValues(operation, result).Inc()
}

// ImageSize maps a sizing hint to a supported image size
func ImageSize(sizing string) string {
	switch sizing {
	case "story", "portrait", "reel":
		return openai.CreateImageSize1024x1792
	case "landscape":
		return openai.CreateImageSize1792x1024
	default:
		return openai.CreateImageSize1024x1024
	}
}

// EnhancePrompt decorates a caption into an image prompt
func EnhancePrompt(prompt string) string {
	return fmt.Sprintf("High-quality, social-media-ready image: %s, vibrant colors, good lighting, no text overlay, no watermark", prompt)
}

// translate rewrites provider status codes into messages the retry
// classifier understands
func translate(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, err)
	}
	return err
}

func statusError(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("rate limit exceeded: %w", err)
	case status >= 500:
		return fmt.Errorf("provider temporarily unavailable (%d): %w", status, err)
	default:
		return err
	}
}
