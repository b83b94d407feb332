package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// journalRepo implements the dispatch journal repository
type journalRepo struct {
	db *sql.DB
}

// NewJournalRepo creates a new journal repository
func NewJournalRepo(dbPath string) (repo.JournalRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; avoids SQLITE_BUSY between the loop and the API
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS dispatches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			reply_id TEXT NOT NULL DEFAULT '',
			reply_text TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dispatches_room ON dispatches(room_id, id)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &journalRepo{db: db}, nil
}

// Record saves a dispatch attempt
func (r *journalRepo) Record(ctx context.Context, rec *repo.DispatchRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatches (room_id, message_id, reply_id, reply_text, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RoomID,
		rec.MessageID,
		rec.ReplyID,
		rec.ReplyText,
		string(rec.Status),
		rec.Error,
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// RecentMessageIDs lists the newest journaled message ids of a room, oldest first
func (r *journalRepo) RecentMessageIDs(ctx context.Context, roomID string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id FROM (
			SELECT message_id, id FROM dispatches
			WHERE room_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query message ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List lists the newest dispatch records of a room, newest first
func (r *journalRepo) List(ctx context.Context, roomID string, limit int) ([]*repo.DispatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT room_id, message_id, reply_id, reply_text, status, error, created_at
		FROM dispatches
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	defer rows.Close()

	var records []*repo.DispatchRecord
	for rows.Next() {
		var rec repo.DispatchRecord
		var status string
		var createdAt int64
		if err := rows.Scan(&rec.RoomID, &rec.MessageID, &rec.ReplyID, &rec.ReplyText, &status, &rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		rec.Status = repo.DispatchStatus(status)
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CleanupOld deletes records created before the given time
func (r *journalRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM dispatches WHERE created_at < ?
	`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old dispatches: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (r *journalRepo) Close() error {
	return r.db.Close()
}
