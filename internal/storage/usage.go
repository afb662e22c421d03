package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Default abuse-detection thresholds: more than 20 lookups inside a
// rolling 5 minute window is considered suspicious.
const (
	DefaultSuspiciousThreshold = 20
	DefaultSuspiciousWindow    = 5 * time.Minute
)

// UsageEvent is one recorded card lookup. Events are append-only.
type UsageEvent struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_uuid"`
	CardKey   string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// BanRecord marks a user whose requests are silently dropped.
type BanRecord struct {
	UserID   string    `json:"user_uuid"`
	BannedAt time.Time `json:"banned_at"`
	Reason   string    `json:"reason,omitempty"`
}

// SuspiciousUser is a user over the lookup threshold in the window.
type SuspiciousUser struct {
	UserID      string `json:"user_uuid"`
	LookupCount int    `json:"lookup_count"`
}

// UsageStore tracks per-user lookups and the ban list.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a usage store over the shared database.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Record appends one lookup event. It must be called for every
// dispatched lookup (cache hit or provider resolution), never for
// banned or dropped requests.
func (u *UsageStore) Record(ctx context.Context, userID, cardKey string, now time.Time) error {
	_, err := u.db.Conn().ExecContext(ctx,
		"INSERT INTO usage_log (user_uuid, query, timestamp) VALUES (?, ?, ?)",
		userID, cardKey, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// RecentCount counts a user's lookups inside the rolling window ending
// at now.
func (u *UsageStore) RecentCount(ctx context.Context, userID string, window time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-window).Unix()
	var count int
	err := u.db.Conn().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM usage_log WHERE user_uuid = ? AND timestamp > ?",
		userID, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent usage: %w", err)
	}
	return count, nil
}

// IsBanned reports whether a user is on the ban list.
func (u *UsageStore) IsBanned(ctx context.Context, userID string) (bool, error) {
	var one int
	err := u.db.Conn().QueryRowContext(ctx,
		"SELECT 1 FROM banned_users WHERE user_uuid = ?", userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ban: %w", err)
	}
	return true, nil
}

// Ban adds or refreshes a ban record for a user.
func (u *UsageStore) Ban(ctx context.Context, userID, reason string, now time.Time) error {
	_, err := u.db.Conn().ExecContext(ctx,
		"INSERT OR REPLACE INTO banned_users (user_uuid, banned_at, reason) VALUES (?, ?, ?)",
		userID, now.Unix(), reason,
	)
	if err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

// Unban removes a user's ban record, reporting whether one existed.
func (u *UsageStore) Unban(ctx context.Context, userID string) (bool, error) {
	res, err := u.db.Conn().ExecContext(ctx,
		"DELETE FROM banned_users WHERE user_uuid = ?", userID)
	if err != nil {
		return false, fmt.Errorf("failed to unban user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// BannedUsers returns all ban records, most recent first.
func (u *UsageStore) BannedUsers(ctx context.Context) ([]BanRecord, error) {
	rows, err := u.db.Conn().QueryContext(ctx,
		"SELECT user_uuid, banned_at, COALESCE(reason, '') FROM banned_users ORDER BY banned_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list banned users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bans []BanRecord
	for rows.Next() {
		var ban BanRecord
		var bannedAt int64
		if err := rows.Scan(&ban.UserID, &bannedAt, &ban.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan ban record: %w", err)
		}
		ban.BannedAt = time.Unix(bannedAt, 0).UTC()
		bans = append(bans, ban)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ban records: %w", err)
	}
	return bans, nil
}

// SuspiciousUsers returns users at or over threshold lookups inside the
// window, busiest first.
func (u *UsageStore) SuspiciousUsers(ctx context.Context, threshold int, window time.Duration, now time.Time) ([]SuspiciousUser, error) {
	cutoff := now.Add(-window).Unix()
	rows, err := u.db.Conn().QueryContext(ctx, `
		SELECT user_uuid, COUNT(*) AS lookup_count
		FROM usage_log
		WHERE timestamp > ?
		GROUP BY user_uuid
		HAVING COUNT(*) >= ?
		ORDER BY lookup_count DESC
	`, cutoff, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspicious users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []SuspiciousUser
	for rows.Next() {
		var su SuspiciousUser
		if err := rows.Scan(&su.UserID, &su.LookupCount); err != nil {
			return nil, fmt.Errorf("failed to scan suspicious user: %w", err)
		}
		users = append(users, su)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suspicious users: %w", err)
	}
	return users, nil
}

// UsageLog returns one page of the usage log, newest first, optionally
// filtered to a single user. The second return value is the total row
// count for the filter.
func (u *UsageStore) UsageLog(ctx context.Context, userID string, page, pageSize int) ([]UsageEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	where := ""
	args := []interface{}{}
	if userID != "" {
		where = "WHERE user_uuid = ?"
		args = append(args, userID)
	}

	var total int64
	err := u.db.Conn().QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM usage_log %s", where), args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count usage log: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, user_uuid, query, timestamp FROM usage_log %s ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?",
		where)
	rows, err := u.db.Conn().QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read usage log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []UsageEvent
	for rows.Next() {
		var ev UsageEvent
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.CardKey, &ts); err != nil {
			return nil, 0, fmt.Errorf("failed to scan usage event: %w", err)
		}
		ev.Timestamp = time.Unix(ts, 0).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating usage log: %w", err)
	}

	return events, total, nil
}

// TotalLookupsToday counts all lookups since midnight UTC.
func (u *UsageStore) TotalLookupsToday(ctx context.Context, now time.Time) (int64, error) {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Unix()

	var count int64
	err := u.db.Conn().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM usage_log WHERE timestamp >= ?", midnight,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's lookups: %w", err)
	}
	return count, nil
}
