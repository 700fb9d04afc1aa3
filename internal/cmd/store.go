package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/store/dirsidecar"
	"github.com/tilecached/tilecached/internal/store/filearchive"
	"github.com/tilecached/tilecached/internal/store/relstore"
)

// openStore opens one of the three interchangeable store backends by
// name: "dir" (directory + sidecar database), "archive" (single-file,
// mbtiles-shaped), or "pg" (relational, Postgres). path is the
// directory or archive file path for the first two, or the dataset
// name for "pg" (connStr supplies the connection string).
func openStore(ctx context.Context, backend, path, connStr string, create bool, timeout time.Duration) (store.Store, error) {
	switch backend {
	case "dir":
		return dirsidecar.Open(ctx, path, create, timeout)
	case "archive":
		return filearchive.Open(ctx, path, create)
	case "pg":
		return relstore.Open(ctx, connStr, path, timeout)
	default:
		return nil, fmt.Errorf("cmd: unknown store backend %q (want dir, archive, or pg)", backend)
	}
}
