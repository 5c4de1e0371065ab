package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/cadence/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketAccounts      = []byte("accounts")
	bucketPosts         = []byte("posts")
	bucketRules         = []byte("rules")
	bucketReplies       = []byte("replies")
	bucketNotifications = []byte("notifications")
	bucketPreferences   = []byte("preferences")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "cadence.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketAccounts,
			bucketPosts,
			bucketRules,
			bucketReplies,
			bucketNotifications,
			bucketPreferences,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func get(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// Account operations
func (s *BoltStore) CreateAccount(ctx context.Context, account *types.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = nowUTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketAccounts, account.ID, account)
	})
}

func (s *BoltStore) GetAccount(ctx context.Context, id string) (*types.Account, error) {
	var account types.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketAccounts, id, &account)
	})
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	return &account, nil
}

func (s *BoltStore) ListAccounts(ctx context.Context) ([]*types.Account, error) {
	var accounts []*types.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			var account types.Account
			if err := json.Unmarshal(v, &account); err != nil {
				return err
			}
			accounts = append(accounts, &account)
			return nil
		})
	})
	return accounts, err
}

// Post operations
func (s *BoltStore) CreatePost(ctx context.Context, post *types.ScheduledPost) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = nowUTC()
	}
	post.ScheduledAt = post.ScheduledAt.UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketPosts, post.ID, post)
	})
}

func (s *BoltStore) GetPost(ctx context.Context, id string) (*types.ScheduledPost, error) {
	var post types.ScheduledPost
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketPosts, id, &post)
	})
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", id, err)
	}
	return &post, nil
}

func (s *BoltStore) listPosts(keep func(*types.ScheduledPost) bool) ([]*types.ScheduledPost, error) {
	var posts []*types.ScheduledPost
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPosts).ForEach(func(k, v []byte) error {
			var post types.ScheduledPost
			if err := json.Unmarshal(v, &post); err != nil {
				return err
			}
			if keep == nil || keep(&post) {
				posts = append(posts, &post)
			}
			return nil
		})
	})
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].ScheduledAt.Before(posts[j].ScheduledAt)
	})
	return posts, err
}

func (s *BoltStore) ListPosts(ctx context.Context) ([]*types.ScheduledPost, error) {
	return s.listPosts(nil)
}

func (s *BoltStore) ListDuePosts(ctx context.Context, platform types.Platform, now time.Time) ([]*types.ScheduledPost, error) {
	return s.listPosts(func(p *types.ScheduledPost) bool {
		return p.Platform == platform && p.IsDue(now)
	})
}

func (s *BoltStore) ListUpcomingPosts(ctx context.Context, from, until time.Time) ([]*types.ScheduledPost, error) {
	return s.listPosts(func(p *types.ScheduledPost) bool {
		return p.Status == types.PostStatusScheduled && p.IsActive &&
			p.ScheduledAt.After(from) && !p.ScheduledAt.After(until)
	})
}

func (s *BoltStore) ListPublishedPlatformIDs(ctx context.Context, accountID string) ([]string, error) {
	posts, err := s.listPosts(func(p *types.ScheduledPost) bool {
		return p.AccountID == accountID && p.Status == types.PostStatusPosted && p.PlatformPostID != ""
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PlatformPostID)
	}
	return ids, nil
}

func (s *BoltStore) UpdatePost(ctx context.Context, id string, fn PostMutator) (*types.ScheduledPost, error) {
	var post types.ScheduledPost
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := get(tx, bucketPosts, id, &post); err != nil {
			return err
		}
		if post.IsTerminal() {
			return ErrPostFinalized
		}
		if err := fn(&post); err != nil {
			return err
		}
		post.ScheduledAt = post.ScheduledAt.UTC()
		post.UpdatedAt = nowUTC()
		return put(tx, bucketPosts, id, &post)
	})
	if err != nil {
		return nil, fmt.Errorf("update post %s: %w", id, err)
	}
	return &post, nil
}

// Rule operations
func (s *BoltStore) CreateRule(ctx context.Context, rule *types.AutomationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = nowUTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketRules, rule.ID, rule)
	})
}

func (s *BoltStore) GetRule(ctx context.Context, id string) (*types.AutomationRule, error) {
	var rule types.AutomationRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketRules, id, &rule)
	})
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", id, err)
	}
	return &rule, nil
}

func (s *BoltStore) listRules(activeOnly bool) ([]*types.AutomationRule, error) {
	var rules []*types.AutomationRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).ForEach(func(k, v []byte) error {
			var rule types.AutomationRule
			if err := json.Unmarshal(v, &rule); err != nil {
				return err
			}
			if !activeOnly || rule.Active {
				rules = append(rules, &rule)
			}
			return nil
		})
	})
	return rules, err
}

func (s *BoltStore) ListRules(ctx context.Context) ([]*types.AutomationRule, error) {
	return s.listRules(false)
}

func (s *BoltStore) ListActiveRules(ctx context.Context) ([]*types.AutomationRule, error) {
	return s.listRules(true)
}

func (s *BoltStore) UpdateRule(ctx context.Context, id string, fn RuleMutator) (*types.AutomationRule, error) {
	var rule types.AutomationRule
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := get(tx, bucketRules, id, &rule); err != nil {
			return err
		}
		if err := fn(&rule); err != nil {
			return err
		}
		return put(tx, bucketRules, id, &rule)
	})
	if err != nil {
		return nil, fmt.Errorf("update rule %s: %w", id, err)
	}
	return &rule, nil
}

// Reply record operations
func replyKey(targetID, accountID string) string {
	return accountID + "/" + targetID
}

func (s *BoltStore) HasReply(ctx context.Context, targetID, accountID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketReplies).Get([]byte(replyKey(targetID, accountID))) != nil
		return nil
	})
	return found, err
}

func putReply(tx *bolt.Tx, rec *types.ReplyRecord) error {
	key := replyKey(rec.TargetID, rec.AccountID)
	if tx.Bucket(bucketReplies).Get([]byte(key)) != nil {
		return ErrDuplicate
	}
	return put(tx, bucketReplies, key, rec)
}

func (s *BoltStore) PutReply(ctx context.Context, rec *types.ReplyRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putReply(tx, rec)
	})
}

func (s *BoltStore) CommitReply(ctx context.Context, rec *types.ReplyRecord) error {
	if rec.RepliedAt.IsZero() {
		rec.RepliedAt = nowUTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putReply(tx, rec); err != nil {
			return err
		}
		if rec.RuleID == "" {
			return nil
		}
		var rule types.AutomationRule
		if err := get(tx, bucketRules, rec.RuleID, &rule); err != nil {
			return fmt.Errorf("rule %s: %w", rec.RuleID, err)
		}
		applyReplyToRule(&rule, rec.RepliedAt)
		return put(tx, bucketRules, rule.ID, &rule)
	})
}

func (s *BoltStore) ListReplies(ctx context.Context, accountID string) ([]*types.ReplyRecord, error) {
	var records []*types.ReplyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReplies).ForEach(func(k, v []byte) error {
			var rec types.ReplyRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if accountID == "" || rec.AccountID == accountID {
				records = append(records, &rec)
			}
			return nil
		})
	})
	return records, err
}

// Notification operations
func (s *BoltStore) CreateNotification(ctx context.Context, n *types.Notification, window time.Duration) (*types.Notification, bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = nowUTC()
	}

	var existing *types.Notification
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		if dedupApplies(n, window) {
			err := b.ForEach(func(k, v []byte) error {
				var other types.Notification
				if err := json.Unmarshal(v, &other); err != nil {
					return err
				}
				if isDuplicatePrePosting(&other, n, window) {
					existing = &other
				}
				return nil
			})
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}
		}
		return put(tx, bucketNotifications, n.ID, n)
	})
	if err != nil {
		return nil, false, fmt.Errorf("create notification: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	return n, true, nil
}

func (s *BoltStore) ListNotifications(ctx context.Context, userID string, limit int) ([]*types.Notification, error) {
	var notifications []*types.Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotifications).ForEach(func(k, v []byte) error {
			var n types.Notification
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if userID == "" || n.UserID == userID {
				notifications = append(notifications, &n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

func (s *BoltStore) PurgeNotifications(ctx context.Context, before time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var n types.Notification
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.CreatedAt.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// Keys cannot be deleted while iterating with ForEach
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		purged = len(stale)
		return nil
	})
	return purged, err
}

// Preference operations
func (s *BoltStore) GetPreferences(ctx context.Context, userID string) (*types.NotificationPreferences, error) {
	var prefs types.NotificationPreferences
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketPreferences, userID, &prefs)
	})
	if errors.Is(err, ErrNotFound) {
		return types.DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (s *BoltStore) SavePreferences(ctx context.Context, prefs *types.NotificationPreferences) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketPreferences, prefs.UserID, prefs)
	})
}

func (s *BoltStore) ListPreferences(ctx context.Context) ([]*types.NotificationPreferences, error) {
	var all []*types.NotificationPreferences
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPreferences).ForEach(func(k, v []byte) error {
			var prefs types.NotificationPreferences
			if err := json.Unmarshal(v, &prefs); err != nil {
				return err
			}
			all = append(all, &prefs)
			return nil
		})
	})
	return all, err
}
