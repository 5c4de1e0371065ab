package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/cadence/pkg/config"
)

// Open returns the store selected by cfg. When cfg.EncryptionKey is set
// the store is wrapped so access tokens are sealed at rest.
func Open(cfg config.StoreConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverBolt, "":
		store, err = NewBoltStore(cfg.DataDir)
	case config.DriverSQLite:
		store, err = NewSQLStore(cfg.SQLitePath())
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.EncryptionKey == "" {
		return store, nil
	}

	sealed, err := NewSealedStore(store, cfg.EncryptionKey)
	if err != nil {
		store.Close()
		return nil, err
	}
	return sealed, nil
}

// MigrateStats counts what Migrate copied
type MigrateStats struct {
	Accounts      int
	Posts         int
	Rules         int
	Replies       int
	Notifications int
	Preferences   int
}

// Migrate copies every entity from src into dst. Entities are upserted by
// id, and reply records already present in dst are skipped, so running it
// twice is harmless.
func Migrate(ctx context.Context, src, dst Store) (MigrateStats, error) {
	var stats MigrateStats

	accounts, err := src.ListAccounts(ctx)
	if err != nil {
		return stats, fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range accounts {
		if err := dst.CreateAccount(ctx, a); err != nil {
			return stats, fmt.Errorf("copy account %s: %w", a.ID, err)
		}
		stats.Accounts++
	}

	posts, err := src.ListPosts(ctx)
	if err != nil {
		return stats, fmt.Errorf("list posts: %w", err)
	}
	for _, p := range posts {
		if err := dst.CreatePost(ctx, p); err != nil {
			return stats, fmt.Errorf("copy post %s: %w", p.ID, err)
		}
		stats.Posts++
	}

	rules, err := src.ListRules(ctx)
	if err != nil {
		return stats, fmt.Errorf("list rules: %w", err)
	}
	for _, r := range rules {
		if err := dst.CreateRule(ctx, r); err != nil {
			return stats, fmt.Errorf("copy rule %s: %w", r.ID, err)
		}
		stats.Rules++
	}

	replies, err := src.ListReplies(ctx, "")
	if err != nil {
		return stats, fmt.Errorf("list replies: %w", err)
	}
	for _, rec := range replies {
		err := dst.PutReply(ctx, rec)
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("copy reply %s: %w", rec.TargetID, err)
		}
		stats.Replies++
	}

	notifications, err := src.ListNotifications(ctx, "", 0)
	if err != nil {
		return stats, fmt.Errorf("list notifications: %w", err)
	}
	for _, n := range notifications {
		if _, _, err := dst.CreateNotification(ctx, n, 0); err != nil {
			return stats, fmt.Errorf("copy notification %s: %w", n.ID, err)
		}
		stats.Notifications++
	}

	prefs, err := src.ListPreferences(ctx)
	if err != nil {
		return stats, fmt.Errorf("list preferences: %w", err)
	}
	for _, p := range prefs {
		if err := dst.SavePreferences(ctx, p); err != nil {
			return stats, fmt.Errorf("copy preferences %s: %w", p.UserID, err)
		}
		stats.Preferences++
	}

	return stats, nil
}
