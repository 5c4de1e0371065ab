package retry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Class is a failure category the policy table is keyed by
type Class string

const (
	// ClassResolveTransient is a rate-limited or short media generation
	ClassResolveTransient Class = "resolve_transient"
	// ClassTransient is a publish failure likely to succeed later
	ClassTransient Class = "transient"
	// ClassMedia is a publish failure caused by the media reference itself
	ClassMedia Class = "media"
	// ClassTerminal is never retried
	ClassTerminal Class = "terminal"
)

// Backoff selects how the delay grows with the attempt number
type Backoff string

const (
	BackoffLinear Backoff = "linear"
	BackoffFixed  Backoff = "fixed"
)

// Rule is one row of the retry table
type Rule struct {
	MaxRetries int
	BaseDelay  time.Duration
	Backoff    Backoff
	// ClearMedia asks the caller to drop resolved media so it is regenerated
	ClearMedia bool
}

// Decision is the outcome of consulting the policy
type Decision struct {
	Class      Class
	Retry      bool
	RetryCount int           // Value to persist on the post
	Delay      time.Duration // Zero when not retrying
	NextRunAt  time.Time
	ClearMedia bool
}

// Policy maps failure classes to retry rules
type Policy struct {
	rules map[Class]Rule
}

// DefaultRules returns the stock table: five linear 10 minute retries for
// media generation, three linear 15 minute retries for transient publish
// errors, two fixed 5 minute retries with regeneration for media errors.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassResolveTransient: {MaxRetries: 5, BaseDelay: 10 * time.Minute, Backoff: BackoffLinear},
		ClassTransient:        {MaxRetries: 3, BaseDelay: 15 * time.Minute, Backoff: BackoffLinear},
		ClassMedia:            {MaxRetries: 2, BaseDelay: 5 * time.Minute, Backoff: BackoffFixed, ClearMedia: true},
	}
}

// NewPolicy creates a policy from rules, filling missing classes from the defaults
func NewPolicy(rules map[Class]Rule) *Policy {
	merged := DefaultRules()
	for class, rule := range rules {
		merged[class] = rule
	}
	delete(merged, ClassTerminal)
	return &Policy{rules: merged}
}

// Rule returns the configured rule for class
func (p *Policy) Rule(class Class) (Rule, bool) {
	r, ok := p.rules[class]
	return r, ok
}

// Decide returns what to do with an item that failed with class after
// retryCount previous retries. The item is retried while retryCount is
// below the class ceiling; the returned RetryCount is the incremented value.
func (p *Policy) Decide(class Class, retryCount int, now time.Time) Decision {
	rule, ok := p.rules[class]
	if !ok || retryCount >= rule.MaxRetries {
		return Decision{Class: class, RetryCount: retryCount}
	}

	attempt := retryCount + 1
	delay := rule.BaseDelay
	if rule.Backoff == BackoffLinear {
		delay = rule.BaseDelay * time.Duration(attempt)
	}

	return Decision{
		Class:      class,
		Retry:      true,
		RetryCount: attempt,
		Delay:      delay,
		NextRunAt:  now.Add(delay),
		ClearMedia: rule.ClearMedia,
	}
}

var transientPhrases = []string{
	"rate limit",
	"temporarily unavailable",
	"try again later",
	"quota",
	"too many requests",
}

var mediaPhrases = []string{
	"media",
	"image",
	"video",
	"download",
	"fetch",
	"format",
}

// IsTransientMessage reports whether an error message looks like rate
// limiting or temporary unavailability.
func IsTransientMessage(msg string) bool {
	return containsAny(strings.ToLower(msg), transientPhrases)
}

// IsMediaMessage reports whether an error message points at the media
// reference (download, fetch or format problems).
func IsMediaMessage(msg string) bool {
	return containsAny(strings.ToLower(msg), mediaPhrases)
}

// IsTimeout reports whether err is a deadline or cancellation from a
// bounded collaborator call.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// ClassifyPublishError sorts a publisher error into transient, media or terminal
func ClassifyPublishError(err error) Class {
	if err == nil {
		return ClassTerminal
	}
	if IsTimeout(err) || IsTransientMessage(err.Error()) {
		return ClassTransient
	}
	if IsMediaMessage(err.Error()) {
		return ClassMedia
	}
	return ClassTerminal
}

// ClassifyResolveError sorts a media generation or upload error
func ClassifyResolveError(err error) Class {
	if err == nil {
		return ClassTerminal
	}
	if IsTimeout(err) || IsTransientMessage(err.Error()) {
		return ClassResolveTransient
	}
	return ClassTerminal
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
