package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/cadence/pkg/retry"
	"github.com/cuemby/cadence/pkg/types"
)

// resolvedMedia holds durable references ready to publish
type resolvedMedia struct {
	urls      []string
	thumbnail string
}

// resolveError carries a failure class decided during media resolution
type resolveError struct {
	class retry.Class
	err   error
}

func (e *resolveError) Error() string { return e.err.Error() }
func (e *resolveError) Unwrap() error { return e.err }

// resolveClass classifies a media resolution failure
func resolveClass(err error) retry.Class {
	var re *resolveError
	if errors.As(err, &re) {
		return re.class
	}
	return retry.ClassifyResolveError(err)
}

// IsDataURL reports whether ref is inline image or video data rather
// than a durable URL
func IsDataURL(ref string) bool {
	return strings.HasPrefix(ref, "data:image/") || strings.HasPrefix(ref, "data:video/")
}

// resolveMedia turns the post's media references into durable URLs,
// generating images when a photo or carousel has none
func (e *Executor) resolveMedia(ctx context.Context, post *types.ScheduledPost) (*resolvedMedia, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.MediaTimeout)
	defer cancel()

	switch post.MediaKind {
	case types.MediaKindPhoto:
		return e.resolvePhoto(ctx, post)
	case types.MediaKindCarousel:
		return e.resolveCarousel(ctx, post)
	case types.MediaKindReel:
		return e.resolveReel(ctx, post)
	case types.MediaKindText, "":
		return &resolvedMedia{urls: post.MediaURLs}, nil
	default:
		return nil, &resolveError{
			class: retry.ClassTerminal,
			err:   fmt.Errorf("unknown media kind %q", post.MediaKind),
		}
	}
}

func (e *Executor) resolvePhoto(ctx context.Context, post *types.ScheduledPost) (*resolvedMedia, error) {
	if len(post.MediaURLs) > 0 {
		urls, err := e.uploadInline(ctx, post.MediaURLs[:1])
		if err != nil {
			return nil, err
		}
		return &resolvedMedia{urls: urls}, nil
	}

	e.logger.Info().Str("post_id", post.ID).Msg("No image for photo post, generating one")
	url, err := e.media.GenerateImage(ctx, post.Caption, "feed")
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	return &resolvedMedia{urls: []string{url}}, nil
}

// resolveCarousel generates CarouselMin..CarouselMax prompt variations
// when the post has no images. Fewer than CarouselMin successes is a
// retryable resolution failure, never a partial post.
func (e *Executor) resolveCarousel(ctx context.Context, post *types.ScheduledPost) (*resolvedMedia, error) {
	if len(post.MediaURLs) > 0 {
		urls, err := e.uploadInline(ctx, post.MediaURLs)
		if err != nil {
			return nil, err
		}
		return &resolvedMedia{urls: urls}, nil
	}

	want := e.carouselSize(post.Caption)
	e.logger.Info().Str("post_id", post.ID).Int("images", want).Msg("No images for carousel post, generating")

	urls := make([]string, 0, want)
	var lastErr error
	for i := 1; i <= want; i++ {
		url, err := e.media.GenerateImage(ctx, fmt.Sprintf("%s - variation %d", post.Caption, i), "feed")
		if err != nil {
			lastErr = err
			e.logger.Warn().Err(err).Str("post_id", post.ID).Int("variation", i).Msg("Carousel image generation failed")
			continue
		}
		urls = append(urls, url)
	}

	if len(urls) < e.cfg.CarouselMin {
		return nil, &resolveError{
			class: retry.ClassResolveTransient,
			err:   fmt.Errorf("generated %d of %d required carousel images: %v", len(urls), e.cfg.CarouselMin, lastErr),
		}
	}
	return &resolvedMedia{urls: urls}, nil
}

// carouselSize grows with caption length, clamped to the configured range
func (e *Executor) carouselSize(caption string) int {
	return min(e.cfg.CarouselMax, max(e.cfg.CarouselMin, len(caption)/100+e.cfg.CarouselMin))
}

// resolveReel requires a supplied video. A thumbnail that fails to upload
// is dropped.
func (e *Executor) resolveReel(ctx context.Context, post *types.ScheduledPost) (*resolvedMedia, error) {
	if len(post.MediaURLs) == 0 {
		return nil, &resolveError{
			class: retry.ClassTerminal,
			err:   errors.New("reel has no video and video generation is not available"),
		}
	}
	urls, err := e.uploadInline(ctx, post.MediaURLs[:1])
	if err != nil {
		return nil, err
	}

	thumbnail := post.ThumbnailURL
	if IsDataURL(thumbnail) {
		uploaded, err := e.media.Upload(ctx, thumbnail)
		if err != nil {
			e.logger.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to upload reel thumbnail, publishing without it")
			thumbnail = ""
		} else {
			thumbnail = uploaded
		}
	}
	return &resolvedMedia{urls: urls, thumbnail: thumbnail}, nil
}

// uploadInline replaces data URLs with uploaded durable URLs
func (e *Executor) uploadInline(ctx context.Context, refs []string) ([]string, error) {
	out := make([]string, len(refs))
	for i, ref := range refs {
		if !IsDataURL(ref) {
			out[i] = ref
			continue
		}
		url, err := e.media.Upload(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("media upload failed: %w", err)
		}
		out[i] = url
	}
	return out, nil
}
