/*
Package log provides structured logging for Cadence using zerolog.

The log package wraps zerolog with a single global logger, configurable level
and output format. Components take a child logger from WithComponent once,
at construction, and attach post, rule and user ids as fields per event.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  log.Init(Config)                                          │
	│     │  level: debug/info/warn/error                        │
	│     │  format: console (RFC3339) or JSON                   │
	│     ▼                                                      │
	│  log.Logger (global zerolog.Logger)                        │
	│     │                                                      │
	│     ├── WithComponent("executor")                          │
	│     ├── WithComponent("autoreply")                         │
	│     ├── WithComponent("notify")                            │
	│     ▼                                                      │
	│  stdout, file, or any io.Writer                            │
	└────────────────────────────────────────────────────────────┘

Until Init is called the global logger discards everything, so packages can
be exercised in tests without configuring output.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("executor")
	logger.Info().
		Str("post_id", post.ID).
		Str("platform", string(post.Platform)).
		Msg("Post published")

	logger.Warn().Err(err).Int("retry_count", post.RetryCount).Msg("Publish failed, retry scheduled")

# Conventions

  - Messages start with a capital letter and carry no trailing period
  - Ids go in fields, never in the message text
  - Errors are logged where they are swallowed, not where they are returned
*/
package log
