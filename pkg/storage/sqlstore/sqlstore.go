// Package sqlstore provides a database-agnostic SQL progress store built on
// sqlx. It is embedded by the sqlite and postgres drivers, which only differ
// in how they open the connection.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage"
)

// Driver implements storage.Driver over a *sqlx.DB. Queries are written with
// "?" placeholders and rebound to the connection's dialect.
type Driver struct {
	DB *sqlx.DB
}

// New wraps db and creates the schema if it does not exist.
func New(ctx context.Context, db *sqlx.DB) (*Driver, error) {
	d := &Driver{DB: db}
	if err := d.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return d, nil
}

// schema uses only types SQLite and PostgreSQL both accept. Times are stored
// as unix nanoseconds so both dialects round-trip them exactly.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS item_progress (
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		content_ref TEXT NOT NULL DEFAULT '',
		difficulty_class TEXT NOT NULL,
		interval_ns BIGINT NOT NULL,
		ease_factor DOUBLE PRECISION NOT NULL,
		consecutive_correct BIGINT NOT NULL,
		due_at BIGINT NOT NULL,
		last_reviewed_at BIGINT NOT NULL,
		version BIGINT NOT NULL,
		PRIMARY KEY (user_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS review_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		reviewed_at BIGINT NOT NULL,
		outcome TEXT NOT NULL,
		latency_ns BIGINT,
		source TEXT NOT NULL DEFAULT '',
		resulting_class TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS review_records_user_time ON review_records (user_id, reviewed_at)`,
}

func (d *Driver) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const selectProgress = `SELECT user_id, item_id, content_ref, difficulty_class, interval_ns,
	ease_factor, consecutive_correct, due_at, last_reviewed_at, version
	FROM item_progress`

// Load returns every stored item for the user.
func (d *Driver) Load(ctx context.Context, userID string) (*progress.Snapshot, error) {
	var rows []progressRow
	query := d.DB.Rebind(selectProgress + ` WHERE user_id = ?`)
	if err := d.DB.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	if len(rows) == 0 {
		return nil, storage.NotFoundError{UserID: userID}
	}

	snapshot := progress.NewSnapshot(userID)
	for _, row := range rows {
		p, err := row.toProgress()
		if err != nil {
			return nil, err
		}
		snapshot.Put(p)
	}
	return snapshot, nil
}

// LoadItem returns the stored progress for one item.
func (d *Driver) LoadItem(ctx context.Context, userID, itemID string) (progress.ItemProgress, error) {
	var row progressRow
	query := d.DB.Rebind(selectProgress + ` WHERE user_id = ? AND item_id = ?`)
	err := d.DB.GetContext(ctx, &row, query, userID, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.ItemProgress{}, storage.NotFoundError{UserID: userID, ItemID: itemID}
	}
	if err != nil {
		return progress.ItemProgress{}, fmt.Errorf("failed to load item: %w", err)
	}
	return row.toProgress()
}

// CompareAndSwap writes p when the stored version equals expectedVersion.
func (d *Driver) CompareAndSwap(ctx context.Context, userID string, expectedVersion uint64, p progress.ItemProgress) error {
	if err := storage.ValidateWrite(userID, expectedVersion, p); err != nil {
		return err
	}

	conflict, err := swap(ctx, d.DB, userID, expectedVersion, p)
	if err != nil {
		return err
	}
	if conflict != nil {
		return conflict
	}
	return nil
}

// BatchCompareAndSwap applies the updates inside one transaction. Conflicting
// rows are skipped and reported; the rest commit together.
func (d *Driver) BatchCompareAndSwap(ctx context.Context, userID string, updates []storage.Update) ([]*storage.ConflictError, error) {
	for _, u := range updates {
		if err := storage.ValidateWrite(userID, u.ExpectedVersion, u.Progress); err != nil {
			return nil, err
		}
	}
	if len(updates) == 0 {
		return nil, nil
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}

	var conflicts []*storage.ConflictError
	for _, u := range updates {
		conflict, err := swap(ctx, tx, userID, u.ExpectedVersion, u.Progress)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if conflict != nil {
			conflicts = append(conflicts, conflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return conflicts, nil
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
	Rebind(query string) string
}

func swap(ctx context.Context, db execer, userID string, expectedVersion uint64, p progress.ItemProgress) (*storage.ConflictError, error) {
	row := fromProgress(userID, p)

	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = db.ExecContext(ctx, db.Rebind(`INSERT INTO item_progress (
			user_id, item_id, content_ref, difficulty_class, interval_ns, ease_factor,
			consecutive_correct, due_at, last_reviewed_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO NOTHING`),
			row.UserID, row.ItemID, row.ContentRef, row.DifficultyClass, row.IntervalNanos,
			row.EaseFactor, row.ConsecutiveCorrect, row.DueAt, row.LastReviewedAt, row.Version)
	} else {
		res, err = db.ExecContext(ctx, db.Rebind(`UPDATE item_progress SET
			content_ref = ?, difficulty_class = ?, interval_ns = ?, ease_factor = ?,
			consecutive_correct = ?, due_at = ?, last_reviewed_at = ?, version = ?
		WHERE user_id = ? AND item_id = ? AND version = ?`),
			row.ContentRef, row.DifficultyClass, row.IntervalNanos, row.EaseFactor,
			row.ConsecutiveCorrect, row.DueAt, row.LastReviewedAt, row.Version,
			row.UserID, row.ItemID, int64(expectedVersion))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write item %s: %w", p.ItemID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to write item %s: %w", p.ItemID, err)
	}
	if n == 1 {
		return nil, nil
	}

	var actual int64
	err = sqlx.GetContext(ctx, db, &actual,
		db.Rebind(`SELECT version FROM item_progress WHERE user_id = ? AND item_id = ?`),
		userID, p.ItemID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read version of item %s: %w", p.ItemID, err)
	}

	return &storage.ConflictError{
		UserID:   userID,
		ItemID:   p.ItemID,
		Expected: expectedVersion,
		Actual:   uint64(actual),
	}, nil
}

// AppendReviews inserts records, skipping ids that are already stored.
func (d *Driver) AppendReviews(ctx context.Context, userID string, records []progress.ReviewRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	query := tx.Rebind(`INSERT INTO review_records (
		id, user_id, item_id, reviewed_at, outcome, latency_ns, source, resulting_class
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING`)

	for _, rec := range records {
		row := fromReview(userID, rec)
		_, err := tx.ExecContext(ctx, query,
			row.ID, row.UserID, row.ItemID, row.ReviewedAt, row.Outcome, row.LatencyNanos, row.Source, row.ResultingClass)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to append review %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RecentReviews returns up to limit records, newest first. A limit of zero
// returns the whole log.
func (d *Driver) RecentReviews(ctx context.Context, userID string, limit int) ([]progress.ReviewRecord, error) {
	query := `SELECT id, user_id, item_id, reviewed_at, outcome, latency_ns, source, resulting_class
		FROM review_records WHERE user_id = ? ORDER BY reviewed_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []reviewRow
	if err := d.DB.SelectContext(ctx, &rows, d.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	records := make([]progress.ReviewRecord, len(rows))
	for i, row := range rows {
		records[i] = row.toReview()
	}
	return records, nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	return d.DB.Close()
}
