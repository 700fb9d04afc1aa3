// Package relstore implements the relational tile store backend: tiles
// and metadata for one logical dataset live as rows in a shared Postgres
// database, addressed by dataset name. Grounded on the lib/pq usage
// pattern in the retrieval pack's bike-map mvt service (database/sql
// over the "postgres" driver) and the teacher's context-bound query
// style, generalized from vector tiles to the general Store contract.
package relstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/tilecached/tilecached/internal/imgformat"
	"github.com/tilecached/tilecached/internal/netutil"
	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tileerr"
)

// Store is a Postgres-backed tile store scoped to one dataset name.
type Store struct {
	db      *sql.DB
	dataset string
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Open connects to connStr and ensures the shared schema exists, scoping
// all operations to dataset.
func Open(ctx context.Context, connStr, dataset string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("relstore: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("relstore: ping: %w", err)
	}

	s := &Store{db: db, dataset: dataset, timeout: timeout}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tiles (
			dataset TEXT NOT NULL,
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BYTEA,
			content_type TEXT,
			content_encoding TEXT,
			tile_hash TEXT,
			created_at BIGINT,
			PRIMARY KEY (dataset, zoom_level, tile_column, tile_row)
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			dataset TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT,
			PRIMARY KEY (dataset, name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := netutil.ExecTimeout(ctx, s.db, s.timeout, stmt); err != nil {
			return fmt.Errorf("relstore: schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetTile reads a tile row scoped to this dataset.
func (s *Store) GetTile(ctx context.Context, z, x, y int32) (store.TileRecord, error) {
	row, cancel := netutil.QueryRowTimeout(ctx, s.db, s.timeout,
		`SELECT tile_data, content_type, content_encoding, tile_hash, created_at FROM tiles
		 WHERE dataset=$1 AND zoom_level=$2 AND tile_column=$3 AND tile_row=$4`,
		s.dataset, z, x, y)
	defer cancel()

	var data []byte
	var contentType, contentEncoding, hash sql.NullString
	var created sql.NullInt64
	if err := row.Scan(&data, &contentType, &contentEncoding, &hash, &created); err != nil {
		if err == sql.ErrNoRows {
			return store.TileRecord{}, fmt.Errorf("relstore: %w", tileerr.NotFound)
		}
		return store.TileRecord{}, err
	}

	return store.TileRecord{
		Data:            data,
		ContentType:     contentType.String,
		ContentEncoding: contentEncoding.String,
		Hash:            hash.String,
		Created:         created.Int64,
	}, nil
}

// PutTile upserts a tile row for this dataset. If storeTransparent is
// false and data is a fully-transparent PNG, the write is a no-op.
func (s *Store) PutTile(ctx context.Context, z, x, y int32, data []byte, contentType, contentEncoding string, storeTransparent bool) error {
	if !storeTransparent && imgformat.IsFullyTransparent(data) {
		return nil
	}

	now := time.Now().UnixMilli()
	_, err := netutil.ExecTimeout(ctx, s.db, s.timeout,
		`INSERT INTO tiles (dataset, zoom_level, tile_column, tile_row, tile_data, content_type, content_encoding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (dataset, zoom_level, tile_column, tile_row)
		 DO UPDATE SET tile_data=excluded.tile_data, content_type=excluded.content_type,
		               content_encoding=excluded.content_encoding, created_at=excluded.created_at`,
		s.dataset, z, x, y, data, contentType, contentEncoding, now)
	return err
}

// GetCreated returns the created_at column for a tile.
func (s *Store) GetCreated(ctx context.Context, z, x, y int32) (int64, error) {
	row, cancel := netutil.QueryRowTimeout(ctx, s.db, s.timeout,
		`SELECT created_at FROM tiles WHERE dataset=$1 AND zoom_level=$2 AND tile_column=$3 AND tile_row=$4`,
		s.dataset, z, x, y)
	defer cancel()

	var created sql.NullInt64
	if err := row.Scan(&created); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("relstore: %w", tileerr.NotFound)
		}
		return 0, err
	}
	if !created.Valid {
		return 0, fmt.Errorf("relstore: %w", tileerr.NotFound)
	}
	return created.Int64, nil
}

// GetMetadata reads the per-dataset key-value metadata rows.
func (s *Store) GetMetadata(ctx context.Context) (store.Metadata, error) {
	rows, err := netutil.QueryTimeout(ctx, s.db, s.timeout,
		`SELECT name, value FROM metadata WHERE dataset=$1`, s.dataset)
	if err != nil {
		return store.Metadata{}, err
	}
	defer rows.Close()

	kv := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return store.Metadata{}, err
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return store.Metadata{}, err
	}
	return decodeMetadata(kv), nil
}

func decodeMetadata(kv map[string]string) store.Metadata {
	m := store.Metadata{
		Name:         kv["name"],
		Description:  kv["description"],
		Attribution:  kv["attribution"],
		Version:      kv["version"],
		Type:         orDefault(kv["type"], "baselayer"),
		Format:       orDefault(kv["format"], "png"),
		VectorLayers: kv["vector_layers"],
		Scheme:       orDefault(kv["scheme"], "xyz"),
	}
	if v, ok := kv["minzoom"]; ok {
		m.MinZoom, _ = strconv.Atoi(v)
	}
	if v, ok := kv["maxzoom"]; ok {
		m.MaxZoom, _ = strconv.Atoi(v)
	}
	if v, ok := kv["bounds"]; ok {
		parts := strings.Split(v, ",")
		if len(parts) == 4 {
			for i, p := range parts {
				m.Bounds[i], _ = strconv.ParseFloat(strings.TrimSpace(p), 64)
			}
		}
	}
	if v, ok := kv["center"]; ok {
		parts := strings.Split(v, ",")
		if len(parts) == 3 {
			for i, p := range parts {
				m.Center[i], _ = strconv.ParseFloat(strings.TrimSpace(p), 64)
			}
		}
	}
	return m
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// UpdateMetadata upserts patch.Set into the per-dataset metadata rows.
func (s *Store) UpdateMetadata(ctx context.Context, patch store.Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metadata (dataset, name, value) VALUES ($1, $2, $3)
		 ON CONFLICT (dataset, name) DO UPDATE SET value=excluded.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, v := range patch.Set {
		if _, err := stmt.ExecContext(ctx, s.dataset, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TileExtraInfo scans each range arm scoped to this dataset.
func (s *Store) TileExtraInfo(ctx context.Context, ranges []store.RangeQuery, kind store.ExtraInfoKind) (map[store.TileKey]store.ExtraInfoValue, error) {
	out := map[store.TileKey]store.ExtraInfoValue{}
	col := "tile_hash"
	if kind == store.ExtraInfoCreated {
		col = "created_at"
	}

	for _, r := range ranges {
		query := fmt.Sprintf(
			`SELECT tile_column, tile_row, %s FROM tiles
			 WHERE dataset=$1 AND zoom_level=$2 AND tile_column BETWEEN $3 AND $4 AND tile_row BETWEEN $5 AND $6`, col)
		rows, err := netutil.QueryTimeout(ctx, s.db, s.timeout, query, s.dataset, r.Z, r.XMin, r.XMax, r.YMin, r.YMax)
		if err != nil {
			return nil, err
		}
		if err := scanExtraInfo(rows, r.Z, kind, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanExtraInfo(rows *sql.Rows, z int32, kind store.ExtraInfoKind, out map[store.TileKey]store.ExtraInfoValue) error {
	defer rows.Close()
	for rows.Next() {
		var x, y int32
		var hash sql.NullString
		var created sql.NullInt64
		if kind == store.ExtraInfoHash {
			if err := rows.Scan(&x, &y, &hash); err != nil {
				return err
			}
			if !hash.Valid {
				continue
			}
			out[store.TileKey{Z: z, X: x, Y: y}] = store.ExtraInfoValue{Hash: hash.String}
		} else {
			if err := rows.Scan(&x, &y, &created); err != nil {
				return err
			}
			if !created.Valid {
				continue
			}
			out[store.TileKey{Z: z, X: x, Y: y}] = store.ExtraInfoValue{Created: created.Int64}
		}
	}
	return rows.Err()
}
