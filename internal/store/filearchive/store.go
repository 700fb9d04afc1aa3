// Package filearchive implements the single-file archive tile store: one
// SQLite file holding every tile plus its metadata, in the mbtiles shape.
// Tiles persist in TMS row order internally; callers address tiles in
// XYZ and the conversion happens at the boundary. Grounded on the
// teacher's (now-removed) internal/mbtiles reader/writer pair, adapted
// from "OSM basemap cache" semantics to the general Store contract.
package filearchive

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tilecached/tilecached/internal/imgformat"
	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tileerr"
	"github.com/tilecached/tilecached/internal/tilemath"
)

// Store is a single-file mbtiles-shaped tile archive.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	pending []pendingTile
}

type pendingTile struct {
	z, x, y int32
	data    []byte
}

const batchSize = 64

var _ store.Store = (*Store)(nil)

// Open opens (and, if createIfMissing, creates) the archive at path.
func Open(ctx context.Context, path string, createIfMissing bool) (*Store, error) {
	dsn := path
	if !createIfMissing {
		dsn += "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("filearchive: open %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("filearchive: %w", err)
	}

	if createIfMissing {
		if err := createSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	} else if err := verifySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (name TEXT UNIQUE, value TEXT)`,
		`CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB,
			tile_hash TEXT,
			created_at INTEGER,
			tile_alpha INTEGER DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS tiles_zxy ON tiles (zoom_level, tile_column, tile_row)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("filearchive: schema: %w", err)
		}
	}
	return nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	var count int
	row := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('tiles','metadata')`)
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("filearchive: %w: %v", tileerr.SchemaInvalid, err)
	}
	if count != 2 {
		return fmt.Errorf("filearchive: %w: missing tiles/metadata tables", tileerr.SchemaInvalid)
	}
	return nil
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	return s.db.Close()
}

// GetTile reads a tile, converting the caller's XYZ row to the archive's
// internal TMS row.
func (s *Store) GetTile(ctx context.Context, z, x, y int32) (store.TileRecord, error) {
	tmsY := tilemath.Flip(z, y)

	var blob []byte
	var created sql.NullInt64
	var hash sql.NullString
	row := s.db.QueryRowContext(ctx,
		`SELECT tile_data, created_at, tile_hash FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?`,
		z, x, tmsY)
	if err := row.Scan(&blob, &created, &hash); err != nil {
		if err == sql.ErrNoRows {
			return store.TileRecord{}, fmt.Errorf("filearchive: %w", tileerr.NotFound)
		}
		return store.TileRecord{}, err
	}

	data, _, err := maybeGunzip(blob)
	if err != nil {
		return store.TileRecord{}, fmt.Errorf("filearchive: %w: %v", tileerr.StoreCorrupt, err)
	}

	info := imgformat.Detect(data)
	rec := store.TileRecord{
		Data:            data,
		ContentType:     info.ContentType,
		ContentEncoding: string(info.Encoding),
	}
	if created.Valid {
		rec.Created = created.Int64
	}
	if hash.Valid {
		rec.Hash = hash.String
	}
	return rec, nil
}

// PutTile queues the tile for the next batched flush. If storeTransparent
// is false and data is a fully-transparent PNG, the write is skipped.
func (s *Store) PutTile(ctx context.Context, z, x, y int32, data []byte, contentType, contentEncoding string, storeTransparent bool) error {
	if !storeTransparent && imgformat.IsFullyTransparent(data) {
		return nil
	}

	compressed, err := gzipBytes(data)
	if err != nil {
		return fmt.Errorf("filearchive: %w", err)
	}

	s.mu.Lock()
	s.pending = append(s.pending, pendingTile{z: z, x: x, y: tilemath.Flip(z, y), data: compressed})
	shouldFlush := len(s.pending) >= batchSize
	s.mu.Unlock()

	if shouldFlush {
		return s.Flush(ctx)
	}
	return nil
}

// Flush writes any queued tiles to disk in a single transaction.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(zoom_level, tile_column, tile_row) DO UPDATE SET tile_data=excluded.tile_data, created_at=excluded.created_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, t := range batch {
		if _, err := stmt.ExecContext(ctx, t.z, t.x, t.y, t.data, now); err != nil {
			return fmt.Errorf("filearchive: flush: %w", err)
		}
	}
	return tx.Commit()
}

// GetCreated returns the created_at column for a tile.
func (s *Store) GetCreated(ctx context.Context, z, x, y int32) (int64, error) {
	tmsY := tilemath.Flip(z, y)
	var created sql.NullInt64
	row := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?`, z, x, tmsY)
	if err := row.Scan(&created); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("filearchive: %w", tileerr.NotFound)
		}
		return 0, err
	}
	if !created.Valid {
		return 0, fmt.Errorf("filearchive: %w", tileerr.NotFound)
	}
	return created.Int64, nil
}

// GetMetadata reads the key-value metadata table.
func (s *Store) GetMetadata(ctx context.Context) (store.Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM metadata`)
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
	return decodeMetadata(kv), rows.Err()
}

func decodeMetadata(kv map[string]string) store.Metadata {
	m := store.Metadata{
		Name:         kv["name"],
		Description:  kv["description"],
		Attribution:  kv["attribution"],
		Version:      kv["version"],
		Type:         orDefault(kv["type"], "baselayer"),
		Format:       orDefault(kv["format"], "png"),
		VectorLayers: kv["json"],
		Scheme:       "tms",
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

// UpdateMetadata applies patch.Set as upserts into the metadata table.
func (s *Store) UpdateMetadata(ctx context.Context, patch store.Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metadata (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value=excluded.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, v := range patch.Set {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TileExtraInfo scans each range arm, translating XYZ ranges to TMS row
// ranges (flip reverses min/max since row order inverts).
func (s *Store) TileExtraInfo(ctx context.Context, ranges []store.RangeQuery, kind store.ExtraInfoKind) (map[store.TileKey]store.ExtraInfoValue, error) {
	out := map[store.TileKey]store.ExtraInfoValue{}
	col := "tile_hash"
	if kind == store.ExtraInfoCreated {
		col = "created_at"
	}

	for _, r := range ranges {
		tmsYMin := tilemath.Flip(r.Z, r.YMax)
		tmsYMax := tilemath.Flip(r.Z, r.YMin)

		query := fmt.Sprintf(
			`SELECT tile_column, tile_row, %s FROM tiles WHERE zoom_level=? AND tile_column BETWEEN ? AND ? AND tile_row BETWEEN ? AND ?`, col)
		rows, err := s.db.QueryContext(ctx, query, r.Z, r.XMin, r.XMax, tmsYMin, tmsYMax)
		if err != nil {
			return nil, err
		}
		err = scanExtraInfo(rows, r.Z, kind, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanExtraInfo(rows *sql.Rows, z int32, kind store.ExtraInfoKind, out map[store.TileKey]store.ExtraInfoValue) error {
	defer rows.Close()
	for rows.Next() {
		var x, tmsY int32
		var hash sql.NullString
		var created sql.NullInt64
		if kind == store.ExtraInfoHash {
			if err := rows.Scan(&x, &tmsY, &hash); err != nil {
				return err
			}
			if !hash.Valid {
				continue
			}
			out[store.TileKey{Z: z, X: x, Y: tilemath.Flip(z, tmsY)}] = store.ExtraInfoValue{Hash: hash.String}
		} else {
			if err := rows.Scan(&x, &tmsY, &created); err != nil {
				return err
			}
			if !created.Valid {
				continue
			}
			out[store.TileKey{Z: z, X: x, Y: tilemath.Flip(z, tmsY)}] = store.ExtraInfoValue{Created: created.Int64}
		}
	}
	return rows.Err()
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func maybeGunzip(data []byte) ([]byte, string, error) {
	if len(data) < 2 || data[0] != 0x1F || data[1] != 0x8B {
		return data, "", nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}
	return out, "gzip", nil
}

func contentTypeFor(data []byte) string {
	if len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	return "application/x-protobuf"
}
