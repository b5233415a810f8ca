package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000

// openRecordDB opens the archive record database with WAL mode, a busy
// timeout, and a single connection (SQLite serialises writes), then
// migrates the schema.
func openRecordDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// insertMessages writes a batch of archived messages in one transaction,
// so a mid-batch failure writes nothing.
func insertMessages(ctx context.Context, db *sql.DB, msgs []Message) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO archived_messages (id, session_id, is_group, target_id, user_message, bot_response, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("archive: prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range msgs {
		isGroup := 0
		if m.IsGroup {
			isGroup = 1
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.SessionID, isGroup, m.TargetID,
			m.UserMessage, m.BotResponse, m.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("archive: insert %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// messagesByID loads archived messages keyed by ID. Missing IDs are simply
// absent from the result.
func messagesByID(ctx context.Context, db *sql.DB, ids []string) (map[string]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, is_group, target_id, user_message, bot_response, ts
		FROM archived_messages
		WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query by id: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]Message, len(ids))
	for rows.Next() {
		var (
			m       Message
			isGroup int
			ts      string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &isGroup, &m.TargetID, &m.UserMessage, &m.BotResponse, &ts); err != nil {
			return nil, fmt.Errorf("archive: scan row: %w", err)
		}
		m.IsGroup = isGroup != 0
		m.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("archive: parse timestamp %q: %w", ts, err)
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}
	return out, nil
}

// deleteBySession removes all records for a session.
func deleteBySession(ctx context.Context, db *sql.DB, sessionID string) error {
	if _, err := db.ExecContext(ctx,
		"DELETE FROM archived_messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("archive: delete session %s: %w", sessionID, err)
	}
	return nil
}

// countBySession returns the number of archived records for a session.
func countBySession(ctx context.Context, db *sql.DB, sessionID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM archived_messages WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("archive: count session %s: %w", sessionID, err)
	}
	return n, nil
}
