/*
Package executor turns due scheduled posts into platform publications.

One ProcessDuePosts call handles one platform: it lists scheduled, active
posts whose ScheduledAt has passed and executes each independently. A
panic or error in one post is logged at the item boundary and the loop
moves on.

# Execution

ExecuteOne runs a post through these steps:

	caption check ──► media ──► account ──► publish ──► commit
	     │              │          │            │
	     │              │          │ missing /  └─ classify error
	     │              │          │ offline
	     │              │          ▼
	     │              │     skip, post
	     │              │     untouched
	     │              └─ resolution failure
	     ▼
	  failed

Per step:
  - Media is resolved first, so a resolution failure is applied to the
    post even while its account is disconnected.
  - A missing or disconnected account then leaves the post untouched and
    drops the media resolved on that attempt. A post whose account has no
    token or platform id fails.
  - Photo posts without an image get one generated from the caption.
    Inline data URLs are uploaded to the media store.
  - Carousel posts without images get 3 to 5 prompt variations generated.
    Fewer than CarouselMin successes is a resolve_transient failure.
  - Reels need a supplied video. A data URL thumbnail that fails to upload
    is dropped.
  - Text posts publish the caption alone.

# Commit

Every outcome except an unavailable account is written with one
UpdatePost call: status, IsActive, RetryCount, ScheduledAt,
LastExecutedAt, PlatformPostID or LastError, and media changes all land
in the same transaction. The retry decision is computed inside that
transaction from the stored retry count.

Notifications and events are emitted after the commit. A crash between the
two can lose a notification, never the post state. If UpdatePost reports
ErrPostFinalized another execution already finished the post and this
attempt is dropped without a second notification.

# Retries

The failure class comes from pkg/retry:

	resolve_transient   media generation rate limits, carousel shortfall
	transient           publish rate limits, try again later, timeouts
	media               download/fetch/format errors; media is cleared
	terminal            everything else

Generated media is kept on the post across transient retries so the next
attempt does not regenerate it.
*/
package executor
