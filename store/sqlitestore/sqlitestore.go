// Package sqlitestore implements contract.Store using an embedded SQLite
// database, generalizing the teacher's internal/storage/sqlite package (WAL
// mode, pure-Go driver, secure file permissions) from alert rows to
// generic, JSON-encoded documents.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/kestrel-sync/docsync/contract"
	"github.com/kestrel-sync/docsync/migrations"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// Store is a contract.Store[T] backed by a SQLite file.
type Store[T any] struct {
	db     *sql.DB
	logger *slog.Logger
	path   string
}

var _ contract.Store[struct{}] = (*Store[struct{}])(nil)

// New opens (creating if necessary) the SQLite database at path, runs
// pending migrations, and returns a ready Store. path must not contain ".."
// and may not target a handful of forbidden system directories, mirroring
// the teacher's path-traversal guard.
func New[T any](ctx context.Context, path string, logger *slog.Logger) (*Store[T], error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sqlite_store")

	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("invalid path contains '..': %s", path)
	}
	for _, prefix := range []string{"/etc", "/sys", "/proc", "/dev"} {
		if strings.HasPrefix(path, prefix) {
			return nil, fmt.Errorf("forbidden path prefix %s: %s", prefix, path)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0600); err != nil {
			logger.Warn("failed to set sqlite file permissions to 0600", "error", err)
		}
	}

	logger.Info("sqlite store initialized", "path", path)
	return &Store[T]{db: db, logger: logger, path: path}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.SQLiteFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "sqlite"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *Store[T]) Get(ctx context.Context, id syncmodel.DocumentID) (*syncmodel.Document[T], error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, version_id, version_ts, deleted FROM documents WHERE id = ?`, string(id))
	doc, err := scanDocument[T](id, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func scanDocument[T any](id syncmodel.DocumentID, row *sql.Row) (*syncmodel.Document[T], error) {
	var dataJSON, versionID string
	var versionTs int64
	var deleted int
	if err := row.Scan(&dataJSON, &versionID, &versionTs, &deleted); err != nil {
		return nil, err
	}
	var data T
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", id, err)
	}
	return &syncmodel.Document[T]{
		ID:      id,
		Data:    data,
		Version: syncmodel.Version{ID: syncmodel.DocumentID(versionID), Timestamp: syncmodel.Timestamp(versionTs)},
		Deleted: deleted != 0,
	}, nil
}

func (s *Store[T]) Put(ctx context.Context, doc syncmodel.Document[T]) error {
	dataJSON, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", doc.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, data, version_id, version_ts, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data, version_id = excluded.version_id,
			version_ts = excluded.version_ts, deleted = excluded.deleted
	`, string(doc.ID), string(dataJSON), string(doc.Version.ID), int64(doc.Version.Timestamp), boolToInt(doc.Deleted))
	return err
}

func (s *Store[T]) Delete(ctx context.Context, id syncmodel.DocumentID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, string(id))
	return err
}

func (s *Store[T]) GetBatch(ctx context.Context, ids []syncmodel.DocumentID) ([]syncmodel.Document[T], error) {
	out := make([]syncmodel.Document[T], 0, len(ids))
	for _, id := range ids {
		doc, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *Store[T]) PutBatch(ctx context.Context, docs []syncmodel.Document[T]) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, data, version_id, version_ts, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data, version_id = excluded.version_id,
			version_ts = excluded.version_ts, deleted = excluded.deleted
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, doc := range docs {
		dataJSON, err := json.Marshal(doc.Data)
		if err != nil {
			return fmt.Errorf("encoding document %s: %w", doc.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, string(doc.ID), string(dataJSON),
			string(doc.Version.ID), int64(doc.Version.Timestamp), boolToInt(doc.Deleted)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store[T]) GetAll(ctx context.Context) ([]syncmodel.Document[T], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data, version_id, version_ts, deleted FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []syncmodel.Document[T]
	for rows.Next() {
		var id, dataJSON, versionID string
		var versionTs int64
		var deleted int
		if err := rows.Scan(&id, &dataJSON, &versionID, &versionTs, &deleted); err != nil {
			return nil, err
		}
		var data T
		if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
			return nil, fmt.Errorf("decoding document %s: %w", id, err)
		}
		out = append(out, syncmodel.Document[T]{
			ID:      syncmodel.DocumentID(id),
			Data:    data,
			Version: syncmodel.Version{ID: syncmodel.DocumentID(versionID), Timestamp: syncmodel.Timestamp(versionTs)},
			Deleted: deleted != 0,
		})
	}
	return out, rows.Err()
}

func (s *Store[T]) GetAllIDs(ctx context.Context) ([]syncmodel.DocumentID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []syncmodel.DocumentID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, syncmodel.DocumentID(id))
	}
	return out, rows.Err()
}

func (s *Store[T]) GetChangesSince(ctx context.Context, ts syncmodel.Timestamp) ([]syncmodel.ChangeRecord[T], error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op, data, data_present, version_id, version_ts, local_ts
		FROM changes WHERE local_ts > ? ORDER BY seq
	`, int64(ts))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []syncmodel.ChangeRecord[T]
	for rows.Next() {
		var id, op, versionID string
		var dataJSON sql.NullString
		var dataPresent, versionTs, localTs int64
		if err := rows.Scan(&id, &op, &dataJSON, &dataPresent, &versionID, &versionTs, &localTs); err != nil {
			return nil, err
		}
		rec := syncmodel.ChangeRecord[T]{
			ID:          syncmodel.DocumentID(id),
			Op:          syncmodel.ChangeOp(op),
			DataPresent: dataPresent != 0,
			Version:     syncmodel.Version{ID: syncmodel.DocumentID(versionID), Timestamp: syncmodel.Timestamp(versionTs)},
			LocalTs:     syncmodel.Timestamp(localTs),
		}
		if rec.DataPresent && dataJSON.Valid {
			if err := json.Unmarshal([]byte(dataJSON.String), &rec.Data); err != nil {
				return nil, fmt.Errorf("decoding change data for %s: %w", id, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store[T]) PutChange(ctx context.Context, change syncmodel.ChangeRecord[T]) error {
	var dataJSON sql.NullString
	if change.DataPresent {
		b, err := json.Marshal(change.Data)
		if err != nil {
			return fmt.Errorf("encoding change data for %s: %w", change.ID, err)
		}
		dataJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (id, op, data, data_present, version_id, version_ts, local_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(change.ID), string(change.Op), dataJSON, boolToInt(change.DataPresent),
		string(change.Version.ID), int64(change.Version.Timestamp), int64(change.LocalTs))
	return err
}

func (s *Store[T]) ClearChangesBefore(ctx context.Context, ts syncmodel.Timestamp) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM changes WHERE local_ts < ?`, int64(ts))
	return err
}

func (s *Store[T]) GetLastSyncTimestamp(ctx context.Context) (syncmodel.Timestamp, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = 'last_sync_ts'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return syncmodel.Timestamp(value), nil
}

func (s *Store[T]) SetLastSyncTimestamp(ctx context.Context, ts syncmodel.Timestamp) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES ('last_sync_ts', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, int64(ts))
	return err
}

func (s *Store[T]) Close(_ context.Context) error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
