// Package postgresstore implements contract.Store against PostgreSQL via
// pgx, generalizing the teacher's Standard-profile storage backend
// (internal/storage/factory.go's initStandardStorage + pgxpool) from alert
// rows to generic, JSON-encoded documents stored in TEXT columns.
package postgresstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kestrel-sync/docsync/contract"
	"github.com/kestrel-sync/docsync/migrations"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// Store is a contract.Store[T] backed by a PostgreSQL pgxpool.Pool.
type Store[T any] struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ contract.Store[struct{}] = (*Store[struct{}])(nil)

// Config configures the pgxpool, mirroring the teacher's connection-pool
// tuning knobs in internal/database/postgres.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 10 * time.Minute
	}
	return c
}

// New connects to Postgres, runs pending migrations, and returns a ready
// Store.
func New[T any](ctx context.Context, cfg Config, logger *slog.Logger) (*Store[T], error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "postgres_store")
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if err := runMigrations(cfg.DSN); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres store initialized", "max_conns", cfg.MaxConns)
	return &Store[T]{pool: pool, logger: logger}, nil
}

func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.PostgresFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "postgres"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *Store[T]) Get(ctx context.Context, id syncmodel.DocumentID) (*syncmodel.Document[T], error) {
	row := s.pool.QueryRow(ctx,
		`SELECT data, version_id, version_ts, deleted FROM documents WHERE id = $1`, string(id))

	var dataJSON, versionID string
	var versionTs int64
	var deleted bool
	if err := row.Scan(&dataJSON, &versionID, &versionTs, &deleted); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
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
		Deleted: deleted,
	}, nil
}

func (s *Store[T]) Put(ctx context.Context, doc syncmodel.Document[T]) error {
	dataJSON, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", doc.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, data, version_id, version_ts, deleted)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data, version_id = excluded.version_id,
			version_ts = excluded.version_ts, deleted = excluded.deleted
	`, string(doc.ID), string(dataJSON), string(doc.Version.ID), int64(doc.Version.Timestamp), doc.Deleted)
	return err
}

func (s *Store[T]) Delete(ctx context.Context, id syncmodel.DocumentID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, string(id))
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doc := range docs {
		dataJSON, err := json.Marshal(doc.Data)
		if err != nil {
			return fmt.Errorf("encoding document %s: %w", doc.ID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO documents (id, data, version_id, version_ts, deleted)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				data = excluded.data, version_id = excluded.version_id,
				version_ts = excluded.version_ts, deleted = excluded.deleted
		`, string(doc.ID), string(dataJSON), string(doc.Version.ID), int64(doc.Version.Timestamp), doc.Deleted); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store[T]) GetAll(ctx context.Context) ([]syncmodel.Document[T], error) {
	rows, err := s.pool.Query(ctx, `SELECT id, data, version_id, version_ts, deleted FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []syncmodel.Document[T]
	for rows.Next() {
		var id, dataJSON, versionID string
		var versionTs int64
		var deleted bool
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
			Deleted: deleted,
		})
	}
	return out, rows.Err()
}

func (s *Store[T]) GetAllIDs(ctx context.Context) ([]syncmodel.DocumentID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM documents ORDER BY id`)
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
	rows, err := s.pool.Query(ctx, `
		SELECT id, op, data, data_present, version_id, version_ts, local_ts
		FROM changes WHERE local_ts > $1 ORDER BY seq
	`, int64(ts))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []syncmodel.ChangeRecord[T]
	for rows.Next() {
		var id, op, versionID string
		var dataJSON *string
		var dataPresent bool
		var versionTs, localTs int64
		if err := rows.Scan(&id, &op, &dataJSON, &dataPresent, &versionID, &versionTs, &localTs); err != nil {
			return nil, err
		}
		rec := syncmodel.ChangeRecord[T]{
			ID:          syncmodel.DocumentID(id),
			Op:          syncmodel.ChangeOp(op),
			DataPresent: dataPresent,
			Version:     syncmodel.Version{ID: syncmodel.DocumentID(versionID), Timestamp: syncmodel.Timestamp(versionTs)},
			LocalTs:     syncmodel.Timestamp(localTs),
		}
		if rec.DataPresent && dataJSON != nil {
			if err := json.Unmarshal([]byte(*dataJSON), &rec.Data); err != nil {
				return nil, fmt.Errorf("decoding change data for %s: %w", id, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store[T]) PutChange(ctx context.Context, change syncmodel.ChangeRecord[T]) error {
	var dataJSON *string
	if change.DataPresent {
		b, err := json.Marshal(change.Data)
		if err != nil {
			return fmt.Errorf("encoding change data for %s: %w", change.ID, err)
		}
		s := string(b)
		dataJSON = &s
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO changes (id, op, data, data_present, version_id, version_ts, local_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, string(change.ID), string(change.Op), dataJSON, change.DataPresent,
		string(change.Version.ID), int64(change.Version.Timestamp), int64(change.LocalTs))
	return err
}

func (s *Store[T]) ClearChangesBefore(ctx context.Context, ts syncmodel.Timestamp) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM changes WHERE local_ts < $1`, int64(ts))
	return err
}

func (s *Store[T]) GetLastSyncTimestamp(ctx context.Context) (syncmodel.Timestamp, error) {
	var value int64
	err := s.pool.QueryRow(ctx, `SELECT value FROM sync_meta WHERE key = 'last_sync_ts'`).Scan(&value)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return syncmodel.Timestamp(value), nil
}

func (s *Store[T]) SetLastSyncTimestamp(ctx context.Context, ts syncmodel.Timestamp) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_meta (key, value) VALUES ('last_sync_ts', $1)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, int64(ts))
	return err
}

func (s *Store[T]) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
