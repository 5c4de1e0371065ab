/*
Package retry is Cadence's retry policy engine.

A failed publication attempt is sorted into a failure Class by named
substring predicates over the error text (IsTransientMessage,
IsMediaMessage) plus timeout detection, then looked up in a small table
keyed by class:

	class              ceiling  delay            note
	resolve_transient  5        10m × attempt    media generation rate limits
	transient          3        15m × attempt    publish rate limits, timeouts
	media              2        5m fixed         clear media, regenerate
	terminal           0        -                mark failed

Decide is pure: given the class, the number of retries already spent and
the current time it returns whether to retry, the retry count to persist
and the new run time. The executor commits that decision atomically with
the post's state.
*/
package retry
