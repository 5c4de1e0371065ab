/*
Package genai is Cadence's content generator: text replies and images from
any OpenAI-compatible API.

Client.Generate implements ports.ContentGenerator and backs the auto-reply
engine. Client.CreateImage returns raw image bytes; pkg/media stores them
and hands back a public URL, which is what the executor needs.

# Rate limiting

Every request waits on one token bucket (golang.org/x/time/rate) sized
from RequestsPerMinute, so a carousel asking for five variations at once
is smoothed out instead of tripping the provider's quota.

# Errors

Provider status codes are rewritten so the retry classifier can read them:

	429        "rate limit exceeded: ..."                (transient)
	5xx        "provider temporarily unavailable: ..."   (transient)
	otherwise  provider error unchanged                  (terminal)

Without an API key every call returns ErrNotConfigured. The auto-reply
engine then uses its fallback text; the executor fails posts that need a
generated image.
*/
package genai
