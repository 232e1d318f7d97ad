// Package store provides the SQLite-backed local state: the last known
// ledger mirror per challenge and the history of committed verifications.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Cache provides SQLite-backed persistence.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveMirror stores the latest mirror for its challenge.
func (c *Cache) SaveMirror(ctx context.Context, m model.LedgerMirror) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.db.ExecContext(ctx, `INSERT OR REPLACE INTO ledger_mirror
		(challenge_id, total_budget, remaining, pending_debit, last_synced_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ChallengeID, m.TotalBudget, m.Remaining, m.PendingDebit,
		m.LastSyncedAt.UTC().Format(timeLayout), now,
	)
	if err != nil {
		return fmt.Errorf("saving ledger mirror: %w", err)
	}
	return nil
}

// LoadMirror returns the stored mirror for a challenge.
func (c *Cache) LoadMirror(ctx context.Context, challengeID string) (model.LedgerMirror, bool, error) {
	var m model.LedgerMirror
	var synced string
	err := c.db.QueryRowContext(ctx, `SELECT
		challenge_id, total_budget, remaining, pending_debit, last_synced_at
		FROM ledger_mirror WHERE challenge_id = ?`, challengeID).
		Scan(&m.ChallengeID, &m.TotalBudget, &m.Remaining, &m.PendingDebit, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerMirror{}, false, nil
	}
	if err != nil {
		return model.LedgerMirror{}, false, fmt.Errorf("loading ledger mirror: %w", err)
	}
	m.LastSyncedAt, _ = time.Parse(timeLayout, synced)
	return m, true, nil
}

// ListMirrors returns every stored mirror ordered by challenge id.
func (c *Cache) ListMirrors(ctx context.Context) ([]model.LedgerMirror, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT
		challenge_id, total_budget, remaining, pending_debit, last_synced_at
		FROM ledger_mirror ORDER BY challenge_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var mirrors []model.LedgerMirror
	for rows.Next() {
		var m model.LedgerMirror
		var synced string
		if err := rows.Scan(&m.ChallengeID, &m.TotalBudget, &m.Remaining, &m.PendingDebit, &synced); err != nil {
			return nil, err
		}
		m.LastSyncedAt, _ = time.Parse(timeLayout, synced)
		mirrors = append(mirrors, m)
	}
	return mirrors, rows.Err()
}

// RecordVerification stores a committed verification and its line items.
// Recording the same session twice replaces the earlier record.
func (c *Cache) RecordVerification(ctx context.Context, v model.Verification) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO verifications
		(session_id, challenge_id, day, kind, item_count, total, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.SessionID, v.ChallengeID, v.Day, v.Kind, v.ItemCount, v.Total,
		v.CommittedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording verification: %w", err)
	}

	// Replace the line items for this session
	if _, err := tx.ExecContext(ctx, "DELETE FROM verification_items WHERE session_id = ?", v.SessionID); err != nil {
		return err
	}
	for i, it := range v.Items {
		_, err = tx.ExecContext(ctx, `INSERT INTO verification_items
			(session_id, position, store, amount, payment_date)
			VALUES (?, ?, ?, ?, ?)`,
			v.SessionID, i, it.Store, it.Amount, it.PaymentDate,
		)
		if err != nil {
			return fmt.Errorf("recording verification item: %w", err)
		}
	}

	return tx.Commit()
}

// ListVerifications returns verifications newest first. An empty
// challengeID lists every challenge; limit <= 0 means no limit.
func (c *Cache) ListVerifications(ctx context.Context, challengeID string, limit int) ([]model.Verification, error) {
	query := `SELECT session_id, challenge_id, day, kind, item_count, total, committed_at
		FROM verifications`
	var args []any
	if challengeID != "" {
		query += " WHERE challenge_id = ?"
		args = append(args, challengeID)
	}
	query += " ORDER BY committed_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Verification
	for rows.Next() {
		var v model.Verification
		var committed string
		if err := rows.Scan(&v.SessionID, &v.ChallengeID, &v.Day, &v.Kind, &v.ItemCount, &v.Total, &committed); err != nil {
			return nil, err
		}
		v.CommittedAt, _ = time.Parse(timeLayout, committed)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	if len(out) == 0 {
		return out, nil
	}

	// Batch-load line items
	idx := make(map[string]int, len(out))
	for i, v := range out {
		idx[v.SessionID] = i
	}
	itemRows, err := c.db.QueryContext(ctx, `SELECT session_id, store, amount, payment_date
		FROM verification_items ORDER BY session_id, position`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var sid string
		var it model.LineItem
		if err := itemRows.Scan(&sid, &it.Store, &it.Amount, &it.PaymentDate); err != nil {
			return nil, err
		}
		if i, ok := idx[sid]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	return out, itemRows.Err()
}

// VerifiedOn reports whether a verification was committed for the
// challenge on day (YYYY-MM-DD).
func (c *Cache) VerifiedOn(ctx context.Context, challengeID, day string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM verifications WHERE challenge_id = ? AND day = ?",
		challengeID, day).Scan(&n)
	return n > 0, err
}

// VerificationCount returns the number of recorded verifications.
func (c *Cache) VerificationCount(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM verifications").Scan(&count)
	return count, err
}
