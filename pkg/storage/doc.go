/*
Package storage provides durable state persistence for Cadence's ledger.

The storage package defines the Store interface and two implementations:
BoltStore on bbolt (the default, zero external dependencies) and SQLStore
on an embedded SQLite database (modernc.org/sqlite, pure Go). Both hold the
same entities: accounts, scheduled posts, automation rules, reply records,
notifications and notification preferences.

# Architecture

	┌──────────────────── LEDGER STORAGE ───────────────────────┐
	│                                                             │
	│   executor / autoreply / notify / cmd                       │
	│                    │                                        │
	│                    ▼                                        │
	│   ┌────────────────────────────────────┐                   │
	│   │            Store interface          │                   │
	│   └──────────┬──────────────────┬──────┘                   │
	│              │                  │                           │
	│   ┌──────────▼────────┐ ┌──────▼─────────────┐            │
	│   │ BoltStore          │ │ SQLStore           │            │
	│   │ <dataDir>/cadence.db│ │ <path>.sqlite      │            │
	│   │ JSON per bucket    │ │ one table per type │            │
	│   └────────────────────┘ └────────────────────┘            │
	│                                                             │
	└─────────────────────────────────────────────────────────────┘

Buckets (bolt) and tables (sqlite):

	accounts       keyed by account id
	posts          keyed by post id
	rules          keyed by rule id
	replies        keyed by (target id, account id)
	notifications  keyed by notification id
	preferences    keyed by user id

# Transactions

Every method is a single short transaction. The read-modify-write helpers
are the only way the engines change existing records:

  - UpdatePost loads a post, refuses with ErrPostFinalized if it is already
    posted or failed, applies the mutator and writes it back. Two racing
    executions of the same post can therefore produce at most one terminal
    transition.
  - UpdateRule does the same for automation rules.
  - CommitReply inserts a reply record and bumps the owning rule's success
    bookkeeping together. A second insert for the same key returns
    ErrDuplicate and changes nothing.
  - CreateNotification checks the pre_posting dedup window and inserts in
    the same transaction, so concurrent reminders for one post collapse to
    one record.

Mutators run inside the transaction and must not call back into the store.

# Backends

bbolt serializes writers on its own. The SQLite store pins the pool to one
connection so that its read-modify-write transactions never interleave, and
enables WAL with a busy timeout. Times are stored as UTC unix nanoseconds,
zero meaning unset; string lists are JSON columns.

Open selects the backend from config.StoreConfig. With an encryption key
configured it returns a SealedStore, which seals account access tokens
through pkg/security before they are written and opens them on read.
Migrate copies every entity from one store into another and can be re-run
safely; migrating between two SealedStores with different keys rotates
the key.

# Usage

	store, err := storage.NewBoltStore("/var/lib/cadence")
	if err != nil {
		return err
	}
	defer store.Close()

	due, err := store.ListDuePosts(ctx, types.PlatformInstagram, time.Now().UTC())

	_, err = store.UpdatePost(ctx, post.ID, func(p *types.ScheduledPost) error {
		p.Status = types.PostStatusPosted
		p.IsActive = false
		return nil
	})
	if errors.Is(err, storage.ErrPostFinalized) {
		// another execution already finished this post
	}

# Thread Safety

Both stores are safe for concurrent use. Returned entities are fresh copies
owned by the caller.
*/
package storage
