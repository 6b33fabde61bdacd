package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is a Backend stored in an embedded SQLite database.
//
// The database runs in WAL mode so several processes can read while one
// writes. Every mutation is appended to a change log stamped with the
// writer id of the handle that made it; Watcher replays that log for other
// writers.
//
// Architecture:
//   - kv: key TEXT PRIMARY KEY, value TEXT, updated_at TEXT
//   - kv_changes: seq autoincrement, key, value, deleted, writer, changed_at
type SQLite struct {
	conn   *sql.DB
	path   string
	writer string
}

// OpenSQLite opens (creating if needed) the database at path and
// initializes its schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	backend, err := kv.OpenSQLite(".timeline/timeline.db")
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &SQLite{
		conn:   conn,
		path:   path,
		writer: uuid.NewString(),
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *SQLite) Path() string {
	return db.path
}

// WriterID returns the identity stamped on this handle's changes.
func (db *SQLite) WriterID() string {
	return db.writer
}

// Close checkpoints the WAL and closes the connection.
func (db *SQLite) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *SQLite) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value TEXT,
		deleted INTEGER NOT NULL DEFAULT 0,
		writer TEXT NOT NULL,
		changed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kv_changes_writer ON kv_changes(writer);
	CREATE INDEX IF NOT EXISTS idx_kv_changes_changed_at ON kv_changes(changed_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Get implements Backend.Get.
func (db *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Backend.Set.
func (db *SQLite) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(timeLayout)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`, key, value, now); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO kv_changes (key, value, deleted, writer, changed_at) VALUES (?, ?, 0, ?, ?)
	`, key, value, db.writer, now); err != nil {
		return fmt.Errorf("failed to log change for %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// Delete implements Backend.Delete.
func (db *SQLite) Delete(ctx context.Context, key string) error {
	now := time.Now().UTC().Format(timeLayout)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv_changes (key, value, deleted, writer, changed_at) VALUES (?, NULL, 1, ?, ?)
		`, key, db.writer, now); err != nil {
			return fmt.Errorf("failed to log delete for %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", key, err)
	}
	return nil
}

// ListKeys implements Backend.ListKeys.
func (db *SQLite) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// LatestSeq returns the newest change log sequence number, or 0.
func (db *SQLite) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := db.conn.QueryRowContext(ctx, `SELECT MAX(seq) FROM kv_changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read change log head: %w", err)
	}
	return seq.Int64, nil
}

// ChangesSince returns changes after seq made by other writers, oldest first.
func (db *SQLite) ChangesSince(ctx context.Context, seq int64) ([]Change, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT seq, key, value, deleted, writer, changed_at
	FROM kv_changes
	WHERE seq > ? AND writer != ?
	ORDER BY seq
	`, seq, db.writer)
	if err != nil {
		return nil, fmt.Errorf("failed to query change log: %w", err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var (
			c       Change
			value   sql.NullString
			deleted int
			at      string
		)
		if err := rows.Scan(&c.Seq, &c.Key, &value, &deleted, &c.Writer, &at); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Value = value.String
		c.Deleted = deleted != 0
		if t, err := time.Parse(timeLayout, at); err == nil {
			c.At = t
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// PruneChanges deletes change log entries older than before and returns how
// many were removed.
func (db *SQLite) PruneChanges(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM kv_changes WHERE changed_at < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune change log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SizeBytes returns the sum of key and value lengths stored in the kv table.
func (db *SQLite) SizeBytes(ctx context.Context) (int64, error) {
	var size sql.NullInt64
	err := db.conn.QueryRowContext(ctx, `SELECT SUM(length(CAST(key AS BLOB)) + length(CAST(value AS BLOB))) FROM kv`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to compute size: %w", err)
	}
	return size.Int64, nil
}
