package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/farert/farert-companion/internal/offline"
)

// CacheRepository stores offline cache generations. It satisfies offline.Storage.
type CacheRepository struct {
	db DB
}

var _ offline.Storage = (*CacheRepository)(nil)

// NewCacheRepository creates a new cache repository
func NewCacheRepository(db DB) *CacheRepository {
	return &CacheRepository{
		db: db,
	}
}

// Open returns the named generation, creating it when missing
func (r *CacheRepository) Open(ctx context.Context, name string) (offline.Cache, error) {
	query := r.db.Rebind(`
		INSERT INTO cache_generations (name, created_at)
		VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING
	`)

	if _, err := r.db.ExecContext(ctx, query, name, time.Now().UTC().UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", name, err)
	}

	return &cacheGeneration{db: r.db, name: name}, nil
}

// Keys lists generation names
func (r *CacheRepository) Keys(ctx context.Context) ([]string, error) {
	var names []string

	query := `SELECT name FROM cache_generations ORDER BY name`
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}

	return names, nil
}

// Delete removes a generation and its entries
func (r *CacheRepository) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cache_entries WHERE generation = ?`), name); err != nil {
		return false, fmt.Errorf("failed to delete cache entries for %s: %w", name, err)
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cache_generations WHERE name = ?`), name)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit cache deletion: %w", err)
	}

	return affected > 0, nil
}

type cacheGeneration struct {
	db   DB
	name string
}

type cacheEntryRow struct {
	Status   int    `db:"status"`
	Header   string `db:"header"`
	Body     []byte `db:"body"`
	Digest   string `db:"digest"`
	StoredAt int64  `db:"stored_at"`
}

const upsertEntryQuery = `
	INSERT INTO cache_entries (generation, request_key, status, header, body, digest, stored_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (generation, request_key)
	DO UPDATE SET status = excluded.status, header = excluded.header, body = excluded.body,
		digest = excluded.digest, stored_at = excluded.stored_at
`

func (g *cacheGeneration) Match(ctx context.Context, key string) (*offline.Entry, error) {
	var row cacheEntryRow

	query := g.db.Rebind(`
		SELECT status, header, body, digest, stored_at
		FROM cache_entries
		WHERE generation = ? AND request_key = ?
	`)

	err := g.db.GetContext(ctx, &row, query, g.name, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	header := make(http.Header)
	if row.Header != "" {
		if err := json.Unmarshal([]byte(row.Header), &header); err != nil {
			return nil, fmt.Errorf("failed to decode cached headers: %w", err)
		}
	}

	return &offline.Entry{
		Status:   row.Status,
		Header:   header,
		Body:     row.Body,
		Digest:   row.Digest,
		StoredAt: time.UnixMilli(row.StoredAt).UTC(),
	}, nil
}

func (g *cacheGeneration) Put(ctx context.Context, key string, entry *offline.Entry) error {
	args, err := g.entryArgs(key, entry)
	if err != nil {
		return err
	}

	if _, err := g.db.ExecContext(ctx, g.db.Rebind(upsertEntryQuery), args...); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

func (g *cacheGeneration) PutAll(ctx context.Context, entries map[string]*offline.Entry) error {
	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := g.putAll(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache entries: %w", err)
	}

	return nil
}

func (g *cacheGeneration) putAll(ctx context.Context, tx *sqlx.Tx, entries map[string]*offline.Entry) error {
	query := tx.Rebind(upsertEntryQuery)
	for key, entry := range entries {
		args, err := g.entryArgs(key, entry)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to write cache entry %s: %w", key, err)
		}
	}
	return nil
}

func (g *cacheGeneration) entryArgs(key string, entry *offline.Entry) ([]interface{}, error) {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cached headers: %w", err)
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	return []interface{}{
		g.name,
		key,
		entry.Status,
		string(header),
		body,
		entry.Digest,
		storedAt.UTC().UnixMilli(),
	}, nil
}
