/*
Package platform adapts the posting gateway to Cadence's Publisher and
Reader ports.

Cadence does not speak each social network's API itself. A posting
gateway fronts Instagram and Facebook behind one small JSON API, and
Gateway is its client:

	POST /v1/{platform}/accounts/{user}/posts           publish
	GET  /v1/{platform}/accounts/{user}/posts           recent post ids
	GET  /v1/{platform}/accounts/{user}/conversations   direct messages
	GET  /v1/{platform}/posts/{post}/comments?since=    comments
	GET  /v1/{platform}/comments/{comment}              one comment
	POST /v1/{platform}/comments/{comment}/replies      reply
	POST /v1/{platform}/conversations/{conv}/messages   direct message

Requests carry the gateway token as a bearer token and the account's page
token in X-Access-Token.

# Errors

A non-2xx response becomes an *APIError. Its message is what the retry
classifier reads, so rate limiting (429) and gateway unavailability (502,
503, 504) are prefixed with phrases the classifier treats as transient.
A request cut off by its context keeps the context error in its chain.

# Timestamps

created_at is accepted as RFC 3339, the Graph API offset form
("2025-07-06T11:56:00+0000") or Unix seconds. Anything else decodes to the
zero time; callers treat such items as current.
*/
package platform
