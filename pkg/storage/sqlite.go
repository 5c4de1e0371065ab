package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/cadence/pkg/types"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	platform         TEXT NOT NULL,
	platform_user_id TEXT NOT NULL DEFAULT '',
	username         TEXT NOT NULL DEFAULT '',
	display_name     TEXT NOT NULL DEFAULT '',
	access_token     TEXT NOT NULL DEFAULT '',
	connected        INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS posts (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	account_id       TEXT NOT NULL,
	platform         TEXT NOT NULL,
	caption          TEXT NOT NULL DEFAULT '',
	media_kind       TEXT NOT NULL,
	media_urls       TEXT NOT NULL DEFAULT '[]',
	thumbnail_url    TEXT NOT NULL DEFAULT '',
	strategy_name    TEXT NOT NULL DEFAULT '',
	scheduled_at     INTEGER NOT NULL,
	post_time        TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	is_active        INTEGER NOT NULL,
	retry_count      INTEGER NOT NULL DEFAULT 0,
	last_executed_at INTEGER NOT NULL DEFAULT 0,
	platform_post_id TEXT NOT NULL DEFAULT '',
	last_error       TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_posts_due ON posts(platform, status, is_active, scheduled_at);

CREATE TABLE IF NOT EXISTS rules (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	account_id        TEXT NOT NULL,
	kind              TEXT NOT NULL,
	active            INTEGER NOT NULL,
	target_post_ids   TEXT NOT NULL DEFAULT '[]',
	reply_template    TEXT NOT NULL DEFAULT '',
	use_ai            INTEGER NOT NULL DEFAULT 0,
	daily_limit       INTEGER NOT NULL DEFAULT 0,
	daily_count       INTEGER NOT NULL DEFAULT 0,
	daily_count_date  TEXT NOT NULL DEFAULT '',
	last_execution_at INTEGER NOT NULL DEFAULT 0,
	retry_from        INTEGER NOT NULL DEFAULT 0,
	last_success_at   INTEGER NOT NULL DEFAULT 0,
	last_error_at     INTEGER NOT NULL DEFAULT 0,
	success_count     INTEGER NOT NULL DEFAULT 0,
	error_count       INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS replies (
	target_id  TEXT NOT NULL,
	account_id TEXT NOT NULL,
	rule_id    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	reply_id   TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL DEFAULT '',
	replied_at INTEGER NOT NULL,
	PRIMARY KEY (target_id, account_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	post_id       TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL,
	platform      TEXT NOT NULL DEFAULT '',
	strategy_name TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	read          INTEGER NOT NULL DEFAULT 0,
	scheduled_for INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_dedup ON notifications(user_id, post_id, kind, created_at);

CREATE TABLE IF NOT EXISTS preferences (
	user_id     TEXT PRIMARY KEY,
	success     INTEGER NOT NULL,
	pre_posting INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL DEFAULT 0
);
`

const (
	postColumns = `id, user_id, account_id, platform, caption, media_kind, media_urls, thumbnail_url,
		strategy_name, scheduled_at, post_time, status, is_active, retry_count, last_executed_at,
		platform_post_id, last_error, created_at, updated_at`

	ruleColumns = `id, user_id, account_id, kind, active, target_post_ids, reply_template, use_ai,
		daily_limit, daily_count, daily_count_date, last_execution_at, retry_from, last_success_at,
		last_error_at, success_count, error_count, last_error, created_at, updated_at`

	notificationColumns = `id, user_id, post_id, kind, platform, strategy_name, message, error, read,
		scheduled_for, created_at`
)

// SQLStore implements Store on an embedded SQLite database
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (creating if needed) the SQLite ledger at path
func NewSQLStore(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; read-modify-write transactions
	// never interleave.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func decodeList(raw string) []string {
	var list []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil || len(list) == 0 {
		return nil
	}
	return list
}

// withTx runs fn in a transaction, rolling back on error
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Account operations
func (s *SQLStore) CreateAccount(ctx context.Context, a *types.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = nowUTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts
			(id, user_id, platform, platform_user_id, username, display_name, access_token, connected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Platform), a.PlatformUserID, a.Username, a.DisplayName, a.AccessToken,
		boolInt(a.Connected), toNanos(a.CreatedAt), toNanos(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func scanAccount(row scanner) (*types.Account, error) {
	var a types.Account
	var platform string
	var connected int
	var createdAt, updatedAt int64
	err := row.Scan(&a.ID, &a.UserID, &platform, &a.PlatformUserID, &a.Username, &a.DisplayName,
		&a.AccessToken, &connected, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.Platform = types.Platform(platform)
	a.Connected = connected == 1
	a.CreatedAt = fromNanos(createdAt)
	a.UpdatedAt = fromNanos(updatedAt)
	return &a, nil
}

const accountColumns = `id, user_id, platform, platform_user_id, username, display_name, access_token, connected, created_at, updated_at`

func (s *SQLStore) GetAccount(ctx context.Context, id string) (*types.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func (s *SQLStore) ListAccounts(ctx context.Context) ([]*types.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*types.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Post operations
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func writePost(ctx context.Context, db execer, p *types.ScheduledPost) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.AccountID, string(p.Platform), p.Caption, string(p.MediaKind),
		encodeList(p.MediaURLs), p.ThumbnailURL, p.StrategyName, toNanos(p.ScheduledAt.UTC()), p.PostTime,
		string(p.Status), boolInt(p.IsActive), p.RetryCount, toNanos(p.LastExecutedAt),
		p.PlatformPostID, p.LastError, toNanos(p.CreatedAt), toNanos(p.UpdatedAt))
	return err
}

func scanPost(row scanner) (*types.ScheduledPost, error) {
	var p types.ScheduledPost
	var platform, kind, mediaURLs, status string
	var active int
	var scheduledAt, lastExecutedAt, createdAt, updatedAt int64
	err := row.Scan(&p.ID, &p.UserID, &p.AccountID, &platform, &p.Caption, &kind, &mediaURLs,
		&p.ThumbnailURL, &p.StrategyName, &scheduledAt, &p.PostTime, &status, &active, &p.RetryCount,
		&lastExecutedAt, &p.PlatformPostID, &p.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Platform = types.Platform(platform)
	p.MediaKind = types.MediaKind(kind)
	p.MediaURLs = decodeList(mediaURLs)
	p.Status = types.PostStatus(status)
	p.IsActive = active == 1
	p.ScheduledAt = fromNanos(scheduledAt)
	p.LastExecutedAt = fromNanos(lastExecutedAt)
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updatedAt)
	return &p, nil
}

func (s *SQLStore) queryPosts(ctx context.Context, where string, args ...interface{}) ([]*types.ScheduledPost, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts `+where+` ORDER BY scheduled_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []*types.ScheduledPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *SQLStore) CreatePost(ctx context.Context, p *types.ScheduledPost) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowUTC()
	}
	p.ScheduledAt = p.ScheduledAt.UTC()
	if err := writePost(ctx, s.db, p); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPost(ctx context.Context, id string) (*types.ScheduledPost, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query post: %w", err)
	}
	return p, nil
}

func (s *SQLStore) ListPosts(ctx context.Context) ([]*types.ScheduledPost, error) {
	return s.queryPosts(ctx, "")
}

func (s *SQLStore) ListDuePosts(ctx context.Context, platform types.Platform, now time.Time) ([]*types.ScheduledPost, error) {
	return s.queryPosts(ctx, `WHERE platform = ? AND status = ? AND is_active = 1 AND scheduled_at <= ?`,
		string(platform), string(types.PostStatusScheduled), toNanos(now))
}

func (s *SQLStore) ListUpcomingPosts(ctx context.Context, from, until time.Time) ([]*types.ScheduledPost, error) {
	return s.queryPosts(ctx, `WHERE status = ? AND is_active = 1 AND scheduled_at > ? AND scheduled_at <= ?`,
		string(types.PostStatusScheduled), toNanos(from), toNanos(until))
}

func (s *SQLStore) ListPublishedPlatformIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform_post_id FROM posts
		WHERE account_id = ? AND status = ? AND platform_post_id != ''
		ORDER BY scheduled_at`, accountID, string(types.PostStatusPosted))
	if err != nil {
		return nil, fmt.Errorf("query published posts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) UpdatePost(ctx context.Context, id string, fn PostMutator) (*types.ScheduledPost, error) {
	var post *types.ScheduledPost
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := scanPost(tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if p.IsTerminal() {
			return ErrPostFinalized
		}
		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = nowUTC()
		post = p
		return writePost(ctx, tx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("update post %s: %w", id, err)
	}
	return post, nil
}

// Rule operations
func writeRule(ctx context.Context, db execer, r *types.AutomationRule) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.AccountID, string(r.Kind), boolInt(r.Active), encodeList(r.TargetPostIDs),
		r.ReplyTemplate, boolInt(r.UseAI), r.DailyLimit, r.DailyCount, r.DailyCountDate,
		toNanos(r.LastExecutionAt), toNanos(r.RetryFrom), toNanos(r.LastSuccessAt), toNanos(r.LastErrorAt),
		r.SuccessCount, r.ErrorCount, r.LastError, toNanos(r.CreatedAt), toNanos(r.UpdatedAt))
	return err
}

func scanRule(row scanner) (*types.AutomationRule, error) {
	var r types.AutomationRule
	var kind, targets string
	var active, useAI int
	var lastExec, retryFrom, lastSuccess, lastError, createdAt, updatedAt int64
	err := row.Scan(&r.ID, &r.UserID, &r.AccountID, &kind, &active, &targets, &r.ReplyTemplate, &useAI,
		&r.DailyLimit, &r.DailyCount, &r.DailyCountDate, &lastExec, &retryFrom, &lastSuccess, &lastError,
		&r.SuccessCount, &r.ErrorCount, &r.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Kind = types.RuleKind(kind)
	r.Active = active == 1
	r.UseAI = useAI == 1
	r.TargetPostIDs = decodeList(targets)
	r.LastExecutionAt = fromNanos(lastExec)
	r.RetryFrom = fromNanos(retryFrom)
	r.LastSuccessAt = fromNanos(lastSuccess)
	r.LastErrorAt = fromNanos(lastError)
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updatedAt)
	return &r, nil
}

func (s *SQLStore) CreateRule(ctx context.Context, r *types.AutomationRule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = nowUTC()
	}
	if err := writeRule(ctx, s.db, r); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRule(ctx context.Context, id string) (*types.AutomationRule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query rule: %w", err)
	}
	return r, nil
}

func (s *SQLStore) queryRules(ctx context.Context, where string, args ...interface{}) ([]*types.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []*types.AutomationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *SQLStore) ListRules(ctx context.Context) ([]*types.AutomationRule, error) {
	return s.queryRules(ctx, "")
}

func (s *SQLStore) ListActiveRules(ctx context.Context) ([]*types.AutomationRule, error) {
	return s.queryRules(ctx, "WHERE active = 1")
}

func (s *SQLStore) UpdateRule(ctx context.Context, id string, fn RuleMutator) (*types.AutomationRule, error) {
	var rule *types.AutomationRule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := scanRule(tx.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		rule = r
		return writeRule(ctx, tx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("update rule %s: %w", id, err)
	}
	return rule, nil
}

// Reply record operations
func (s *SQLStore) HasReply(ctx context.Context, targetID, accountID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM replies WHERE target_id = ? AND account_id = ?`, targetID, accountID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query reply: %w", err)
	}
	return n > 0, nil
}

func insertReply(ctx context.Context, db execer, rec *types.ReplyRecord) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO replies (target_id, account_id, rule_id, kind, reply_id, text, replied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (target_id, account_id) DO NOTHING`,
		rec.TargetID, rec.AccountID, rec.RuleID, string(rec.Kind), rec.ReplyID, rec.Text, toNanos(rec.RepliedAt))
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLStore) PutReply(ctx context.Context, rec *types.ReplyRecord) error {
	return insertReply(ctx, s.db, rec)
}

func (s *SQLStore) CommitReply(ctx context.Context, rec *types.ReplyRecord) error {
	if rec.RepliedAt.IsZero() {
		rec.RepliedAt = nowUTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertReply(ctx, tx, rec); err != nil {
			return err
		}
		if rec.RuleID == "" {
			return nil
		}
		r, err := scanRule(tx.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, rec.RuleID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("rule %s: %w", rec.RuleID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		applyReplyToRule(r, rec.RepliedAt)
		return writeRule(ctx, tx, r)
	})
}

func (s *SQLStore) ListReplies(ctx context.Context, accountID string) ([]*types.ReplyRecord, error) {
	query := `SELECT target_id, account_id, rule_id, kind, reply_id, text, replied_at FROM replies`
	var args []interface{}
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY replied_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	var records []*types.ReplyRecord
	for rows.Next() {
		var rec types.ReplyRecord
		var kind string
		var repliedAt int64
		if err := rows.Scan(&rec.TargetID, &rec.AccountID, &rec.RuleID, &kind, &rec.ReplyID, &rec.Text, &repliedAt); err != nil {
			return nil, err
		}
		rec.Kind = types.ReplyKind(kind)
		rec.RepliedAt = fromNanos(repliedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Notification operations
func scanNotification(row scanner) (*types.Notification, error) {
	var n types.Notification
	var kind, platform string
	var read int
	var scheduledFor, createdAt int64
	err := row.Scan(&n.ID, &n.UserID, &n.PostID, &kind, &platform, &n.StrategyName, &n.Message, &n.Error,
		&read, &scheduledFor, &createdAt)
	if err != nil {
		return nil, err
	}
	n.Kind = types.NotificationKind(kind)
	n.Platform = types.Platform(platform)
	n.Read = read == 1
	n.ScheduledFor = fromNanos(scheduledFor)
	n.CreatedAt = fromNanos(createdAt)
	return &n, nil
}

func (s *SQLStore) CreateNotification(ctx context.Context, n *types.Notification, window time.Duration) (*types.Notification, bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = nowUTC()
	}

	var existing *types.Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if dedupApplies(n, window) {
			row := tx.QueryRowContext(ctx, `
				SELECT `+notificationColumns+` FROM notifications
				WHERE user_id = ? AND post_id = ? AND kind = ? AND created_at > ?
				ORDER BY created_at DESC LIMIT 1`,
				n.UserID, n.PostID, string(types.NotificationPrePosting), toNanos(n.CreatedAt.Add(-window)))
			found, err := scanNotification(row)
			if err == nil {
				existing = found
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO notifications (`+notificationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, n.PostID, string(n.Kind), string(n.Platform), n.StrategyName, n.Message, n.Error,
			boolInt(n.Read), toNanos(n.ScheduledFor), toNanos(n.CreatedAt))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("create notification: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	return n, true, nil
}

func (s *SQLStore) ListNotifications(ctx context.Context, userID string, limit int) ([]*types.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*types.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *SQLStore) PurgeNotifications(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Preference operations
func (s *SQLStore) GetPreferences(ctx context.Context, userID string) (*types.NotificationPreferences, error) {
	var success, prePosting int
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT success, pre_posting, updated_at FROM preferences WHERE user_id = ?`, userID).
		Scan(&success, &prePosting, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	return &types.NotificationPreferences{
		UserID:     userID,
		Success:    success == 1,
		PrePosting: prePosting == 1,
		UpdatedAt:  fromNanos(updatedAt),
	}, nil
}

func (s *SQLStore) SavePreferences(ctx context.Context, prefs *types.NotificationPreferences) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preferences (user_id, success, pre_posting, updated_at)
		VALUES (?, ?, ?, ?)`,
		prefs.UserID, boolInt(prefs.Success), boolInt(prefs.PrePosting), toNanos(prefs.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *SQLStore) ListPreferences(ctx context.Context) ([]*types.NotificationPreferences, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, success, pre_posting, updated_at FROM preferences`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var all []*types.NotificationPreferences
	for rows.Next() {
		var p types.NotificationPreferences
		var success, prePosting int
		var updatedAt int64
		if err := rows.Scan(&p.UserID, &success, &prePosting, &updatedAt); err != nil {
			return nil, err
		}
		p.Success = success == 1
		p.PrePosting = prePosting == 1
		p.UpdatedAt = fromNanos(updatedAt)
		all = append(all, &p)
	}
	return all, rows.Err()
}
