package media

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cuemby/cadence/pkg/log"
	"github.com/rs/zerolog"
)

// ImageBackend produces raw image bytes for a prompt
type ImageBackend interface {
	CreateImage(ctx context.Context, prompt, sizing string) ([]byte, error)
}

// Generator turns generated or inline media into durable public URLs.
// It implements ports.MediaGenerator.
type Generator struct {
	backend ImageBackend
	store   *LocalStore
	logger  zerolog.Logger
}

// NewGenerator creates a generator storing into store
func NewGenerator(backend ImageBackend, store *LocalStore) *Generator {
	return &Generator{
		backend: backend,
		store:   store,
		logger:  log.WithComponent("media"),
	}
}

// GenerateImage creates an image for prompt and returns its public URL
func (g *Generator) GenerateImage(ctx context.Context, prompt, sizing string) (string, error) {
	data, err := g.backend.CreateImage(ctx, prompt, sizing)
	if err != nil {
		return "", err
	}

	url, err := g.store.Save(data, http.DetectContentType(data))
	if err != nil {
		return "", err
	}

	g.logger.Info().Str("url", url).Str("sizing", sizing).Msg("Generated image stored")
	return url, nil
}

// Upload stores inline media and returns its public URL. raw is either a
// data URL or the media bytes themselves.
func (g *Generator) Upload(ctx context.Context, raw string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		data        []byte
		contentType string
	)
	if strings.HasPrefix(raw, "data:") {
		var err error
		data, contentType, err = DecodeDataURL(raw)
		if err != nil {
			return "", err
		}
	} else {
		data = []byte(raw)
		contentType = http.DetectContentType(data)
	}

	url, err := g.store.Save(data, contentType)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	g.logger.Debug().Str("url", url).Str("content_type", contentType).Int("bytes", len(data)).Msg("Inline media stored")
	return url, nil
}
