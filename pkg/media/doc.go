/*
Package media is Cadence's media store.

Platforms fetch post media by URL, so anything the executor publishes must
live at a durable public address. This package provides that address:

	executor ──GenerateImage──▶ Generator ──CreateImage──▶ genai.Client
	                               │
	executor ──Upload(dataURL)──▶  │ ──Save──▶ LocalStore ──▶ <dir>/<uuid>.png
	                                                          │
	platform ◀──────── GET <base_url>/<uuid>.png ◀── api /media/

# LocalStore

Files are written under one directory with a random name and the extension
of their content type (png, jpg, gif, webp, mp4, mov). Writes go to a temp
file and are renamed into place. The API server serves the directory at
/media/ and media.base_url must point at it.

# Inline media

Posts created by clients may carry images inline as data URLs.
DecodeDataURL accepts base64 and percent-encoded payloads. Upload also
accepts raw bytes and sniffs their type with http.DetectContentType.

Unsupported formats fail with "unsupported media format", which the
executor treats as a terminal failure for the post.
*/
package media
