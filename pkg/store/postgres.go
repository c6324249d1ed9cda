package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchkb/stitchkb/pkg/errors"
)

// packageCacheSize bounds the (forge, product) → package ID lookup cache.
// Package rows are never deleted by this subsystem, so cached IDs never go
// stale.
const packageCacheSize = 4096

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool     *pgxpool.Pool
	pkgCache *lru.Cache[string, int64]
}

// NewPostgres connects a pool to the given DSN and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFatal, err, "open metadata store")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.ErrCodeStoreFatal, err, "ping metadata store")
	}
	cache, err := lru.New[string, int64](packageCacheSize)
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init package cache")
	}
	return &Postgres{pool: pool, pkgCache: cache}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// InTx implements Store. The DAO handed to fn is constructed for this
// attempt and must not outlive it.
func (p *Postgres) InTx(ctx context.Context, fn func(DAO) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return classify(err, "begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	dao := &pgxDAO{tx: tx, pkgCache: p.pkgCache, pending: make(map[string]int64)}
	if err := fn(dao); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err, "commit transaction")
	}
	// Cache package IDs only once their rows are committed; a rolled-back
	// insert must never leave a phantom ID behind.
	for key, id := range dao.pending {
		p.pkgCache.Add(key, id)
	}
	return nil
}

// pgxDAO implements DAO against one open transaction.
type pgxDAO struct {
	tx       pgx.Tx
	pkgCache *lru.Cache[string, int64]
	pending  map[string]int64
}

var _ DAO = (*pgxDAO)(nil)

func (d *pgxDAO) InsertPackage(ctx context.Context, forge, product string) (int64, error) {
	key := forge + "!" + product
	if id, ok := d.pkgCache.Get(key); ok {
		return id, nil
	}
	if id, ok := d.pending[key]; ok {
		return id, nil
	}

	// The conflict target makes this an insert-or-get: a losing racer reads
	// the winner's row instead of failing.
	var id int64
	err := d.tx.QueryRow(ctx, `
		INSERT INTO packages (forge, product)
		VALUES ($1, $2)
		ON CONFLICT (forge, product) DO UPDATE SET product = EXCLUDED.product
		RETURNING id`, forge, product).Scan(&id)
	if err != nil {
		return 0, classify(err, "insert package %s:%s", forge, product)
	}
	d.pending[key] = id
	return id, nil
}

func (d *pgxDAO) InsertPackageVersion(ctx context.Context, packageID int64, generator, version, architecture string, createdAt *time.Time) (int64, error) {
	var id int64
	err := d.tx.QueryRow(ctx, `
		INSERT INTO package_versions (package_id, version, cg_generator, architecture, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (package_id, version, cg_generator) DO UPDATE SET version = EXCLUDED.version
		RETURNING id`, packageID, version, generator, architecture, createdAt).Scan(&id)
	if err != nil {
		return 0, classify(err, "insert package version %s", version)
	}
	return id, nil
}

func (d *pgxDAO) InsertModule(ctx context.Context, packageVersionID int64, namespace string, metadata map[string]any) (int64, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "encode module metadata")
	}
	var id int64
	err = d.tx.QueryRow(ctx, `
		INSERT INTO modules (package_version_id, namespace, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (package_version_id, namespace) DO UPDATE SET metadata = EXCLUDED.metadata
		RETURNING id`, packageVersionID, namespace, meta).Scan(&id)
	if err != nil {
		return 0, classify(err, "insert module %s", namespace)
	}
	return id, nil
}

func (d *pgxDAO) InsertFile(ctx context.Context, packageVersionID int64, path string) (int64, error) {
	var id int64
	err := d.tx.QueryRow(ctx, `
		INSERT INTO files (package_version_id, path)
		VALUES ($1, $2)
		ON CONFLICT (package_version_id, path) DO UPDATE SET path = EXCLUDED.path
		RETURNING id`, packageVersionID, path).Scan(&id)
	if err != nil {
		return 0, classify(err, "insert file %s", path)
	}
	return id, nil
}

func (d *pgxDAO) LinkModuleFile(ctx context.Context, moduleID, fileID int64) error {
	_, err := d.tx.Exec(ctx, `
		INSERT INTO module_contents (module_id, file_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, moduleID, fileID)
	if err != nil {
		return classify(err, "link module %d to file %d", moduleID, fileID)
	}
	return nil
}

func (d *pgxDAO) InsertCallables(ctx context.Context, records []CallableRecord) ([]int64, error) {
	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode callable metadata")
		}
		batch.Queue(`
			INSERT INTO callables (module_id, fasten_uri, is_internal_call, line_start, line_end, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (module_id, fasten_uri) DO UPDATE SET is_internal_call = EXCLUDED.is_internal_call
			RETURNING id`,
			r.ModuleID, r.URI, r.Internal, r.FirstLine, r.LastLine, meta)
	}

	results := d.tx.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	ids := make([]int64, 0, len(records))
	for range records {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			return nil, classify(err, "insert callables")
		}
		ids = append(ids, id)
	}
	if err := results.Close(); err != nil {
		return nil, classify(err, "insert callables")
	}
	return ids, nil
}

func (d *pgxDAO) BatchInsertEdges(ctx context.Context, records []EdgeRecord) error {
	batch := &pgx.Batch{}
	for _, r := range records {
		receivers, err := json.Marshal(r.Receivers)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encode edge receivers")
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encode edge metadata")
		}
		batch.Queue(`
			INSERT INTO edges (source_id, target_id, receivers, metadata)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (source_id, target_id) DO UPDATE SET receivers = EXCLUDED.receivers`,
			r.Source, r.Target, receivers, meta)
	}
	if err := d.tx.SendBatch(ctx, batch).Close(); err != nil {
		return classify(err, "insert edges")
	}
	return nil
}

// Postgres error classes/codes that are worth retrying in a fresh
// transaction: serialization failures, deadlocks, unique races from
// concurrent first inserts, and connection failures.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
	pgClassConnection      = "08"
)

// classify maps a store error onto the error taxonomy so that callers can
// decide retryability without inspecting cause chains.
func classify(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgSerializationFailure,
			pgErr.Code == pgDeadlockDetected,
			pgErr.Code == pgUniqueViolation,
			len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassConnection:
			return errors.Wrap(errors.ErrCodeStoreTransient, err, "%s", msg)
		}
		return errors.Wrap(errors.ErrCodeStoreFatal, err, "%s", msg)
	}
	if pgconn.SafeToRetry(err) {
		return errors.Wrap(errors.ErrCodeStoreTransient, err, "%s", msg)
	}
	return errors.Wrap(errors.ErrCodeStoreFatal, err, "%s", msg)
}
