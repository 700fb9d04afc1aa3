// Package dirsidecar implements the directory+sidecar-DB tile store: tile
// bytes live as files under <root>/<z>/<x>/<y>.<fmt>, indexed by a small
// SQLite sidecar database carrying hash/created metadata and the
// TileJSON-shaped key-value metadata table. Grounded on the teacher's
// internal/mbtiles package (schema shape, modernc.org/sqlite driver) and
// generalized from "one file holds everything" to "files on disk, index
// in a sidecar".
package dirsidecar

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tilecached/tilecached/internal/imgformat"
	"github.com/tilecached/tilecached/internal/lockfile"
	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tileerr"
)

// Store is a directory-of-files tile store indexed by a sidecar SQLite
// database.
type Store struct {
	root       string
	db         *sql.DB
	defaultExt string
}

var _ store.Store = (*Store)(nil)

const sidecarName = "index.sqlite"

// Open opens (and, if createIfMissing, creates) the store rooted at dir.
func Open(ctx context.Context, dir string, createIfMissing bool, timeout time.Duration) (*Store, error) {
	if !createIfMissing {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("dirsidecar: %w", tileerr.NotFound)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dirsidecar: mkdir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, sidecarName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("dirsidecar: open sidecar: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{root: dir, db: db, defaultExt: "png"}
	if err := s.backfillMetadataIfEmpty(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (name TEXT UNIQUE, value TEXT)`,
		`CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			hash TEXT,
			created INTEGER,
			UNIQUE(zoom_level, tile_column, tile_row)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dirsidecar: schema: %w", err)
		}
	}
	// Idempotently add columns that might be missing from an older
	// sidecar (hash/created were added after the initial release).
	for _, col := range []string{"hash TEXT", "created INTEGER"} {
		name := strings.Fields(col)[0]
		var count int
		row := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info('tiles') WHERE name = ?`, name)
		if err := row.Scan(&count); err == nil && count == 0 {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE tiles ADD COLUMN %s", col)); err != nil {
				return fmt.Errorf("dirsidecar: %w: adding column %s: %v", tileerr.StoreCorrupt, col, err)
			}
		}
	}
	return nil
}

// Close closes the sidecar database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) tilePath(z, x, y int32, ext string) string {
	return filepath.Join(s.root, strconv.Itoa(int(z)), strconv.Itoa(int(x)), fmt.Sprintf("%d.%s", y, ext))
}

// GetTile reads a tile's bytes from disk and its headers via detection.
func (s *Store) GetTile(ctx context.Context, z, x, y int32) (store.TileRecord, error) {
	ext, err := s.lookupExt(ctx, z, x, y)
	if err != nil {
		return store.TileRecord{}, err
	}

	data, err := os.ReadFile(s.tilePath(z, x, y, ext))
	if err != nil {
		if os.IsNotExist(err) {
			return store.TileRecord{}, fmt.Errorf("dirsidecar: %w", tileerr.NotFound)
		}
		return store.TileRecord{}, err
	}

	info := imgformat.Detect(data)
	return store.TileRecord{
		Data:            data,
		ContentType:     info.ContentType,
		ContentEncoding: string(info.Encoding),
	}, nil
}

// lookupExt finds the stored extension for a tile by checking the
// metadata's declared format first, falling back to a directory probe.
func (s *Store) lookupExt(ctx context.Context, z, x, y int32) (string, error) {
	meta, err := s.GetMetadata(ctx)
	if err == nil && meta.Format != "" {
		if _, statErr := os.Stat(s.tilePath(z, x, y, meta.Format)); statErr == nil {
			return meta.Format, nil
		}
	}
	for _, ext := range []string{"png", "jpg", "jpeg", "webp", "gif", "pbf"} {
		if _, statErr := os.Stat(s.tilePath(z, x, y, ext)); statErr == nil {
			return ext, nil
		}
	}
	return "", fmt.Errorf("dirsidecar: %w", tileerr.NotFound)
}

// PutTile writes the tile file and upserts its sidecar row in parallel.
// If storeTransparent is false and data is a fully-transparent PNG, the
// write is a no-op.
func (s *Store) PutTile(ctx context.Context, z, x, y int32, data []byte, contentType, contentEncoding string, storeTransparent bool) error {
	if !storeTransparent && imgformat.IsFullyTransparent(data) {
		return nil
	}

	ext := extForContentType(contentType)
	now := time.Now().UnixMilli()
	sum := md5.Sum(data)
	hash := hex.EncodeToString(sum[:])

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- lockfile.WriteFile(ctx, s.tilePath(z, x, y, ext), data, 0o644)
	}()
	go func() {
		defer wg.Done()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tiles (zoom_level, tile_column, tile_row, hash, created) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(zoom_level, tile_column, tile_row) DO UPDATE SET hash=excluded.hash, created=excluded.created`,
			z, x, y, hash, now)
		errs <- err
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func extForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "application/x-protobuf":
		return "pbf"
	default:
		return "png"
	}
}

// GetCreated returns the created timestamp recorded for a tile.
func (s *Store) GetCreated(ctx context.Context, z, x, y int32) (int64, error) {
	var created sql.NullInt64
	row := s.db.QueryRowContext(ctx,
		`SELECT created FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?`, z, x, y)
	if err := row.Scan(&created); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("dirsidecar: %w", tileerr.NotFound)
		}
		return 0, err
	}
	if !created.Valid {
		return 0, fmt.Errorf("dirsidecar: %w", tileerr.NotFound)
	}
	return created.Int64, nil
}

var metadataKeys = []string{
	"name", "description", "attribution", "version", "type", "format",
	"minzoom", "maxzoom", "bounds", "center", "vector_layers", "scheme",
}

// GetMetadata reads the key-value metadata table, filling defaults for
// missing values.
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
	if err := rows.Err(); err != nil {
		return store.Metadata{}, err
	}

	return parseMetadata(kv), nil
}

func parseMetadata(kv map[string]string) store.Metadata {
	m := store.Metadata{
		Name:         kv["name"],
		Description:  kv["description"],
		Attribution:  kv["attribution"],
		Version:      kv["version"],
		Type:         valueOrDefault(kv["type"], "baselayer"),
		Format:       valueOrDefault(kv["format"], "png"),
		VectorLayers: kv["vector_layers"],
		Scheme:       valueOrDefault(kv["scheme"], "xyz"),
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

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// UpdateMetadata applies patch.Set as upserts into the metadata table.
// Idempotent on equal patches.
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

// TileExtraInfo returns hash or created values restricted to the given
// range queries, as a union of range scans (one arm per range).
func (s *Store) TileExtraInfo(ctx context.Context, ranges []store.RangeQuery, kind store.ExtraInfoKind) (map[store.TileKey]store.ExtraInfoValue, error) {
	out := map[store.TileKey]store.ExtraInfoValue{}
	col := "hash"
	if kind == store.ExtraInfoCreated {
		col = "created"
	}

	for _, r := range ranges {
		query := fmt.Sprintf(
			`SELECT tile_column, tile_row, %s FROM tiles WHERE zoom_level=? AND tile_column BETWEEN ? AND ? AND tile_row BETWEEN ? AND ?`, col)
		rows, err := s.db.QueryContext(ctx, query, r.Z, r.XMin, r.XMax, r.YMin, r.YMax)
		if err != nil {
			return nil, err
		}
		err = func() error {
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
					out[store.TileKey{Z: r.Z, X: x, Y: y}] = store.ExtraInfoValue{Hash: hash.String}
				} else {
					if err := rows.Scan(&x, &y, &created); err != nil {
						return err
					}
					if !created.Valid {
						continue
					}
					out[store.TileKey{Z: r.Z, X: x, Y: y}] = store.ExtraInfoValue{Created: created.Int64}
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// backfillMetadataIfEmpty scans the directory tree once to fill
// minzoom/maxzoom/format when the metadata table has no rows at all.
func (s *Store) backfillMetadataIfEmpty(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil // fresh/empty store, nothing to backfill
	}

	minZoom, maxZoom := -1, -1
	format := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		z, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if minZoom == -1 || z < minZoom {
			minZoom = z
		}
		if z > maxZoom {
			maxZoom = z
		}
		if format == "" {
			format = s.probeFormat(filepath.Join(s.root, e.Name()))
		}
	}
	if minZoom == -1 {
		return nil
	}

	return s.UpdateMetadata(ctx, store.Patch{Set: map[string]string{
		"minzoom": strconv.Itoa(minZoom),
		"maxzoom": strconv.Itoa(maxZoom),
		"format":  valueOrDefault(format, "png"),
	}})
}

func (s *Store) probeFormat(zoomDir string) string {
	var found string
	filepath.Walk(zoomDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if ext != "" {
			found = ext
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
