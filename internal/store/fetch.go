package store

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tilecached/tilecached/internal/imgformat"
	"github.com/tilecached/tilecached/internal/netutil"
	"github.com/tilecached/tilecached/internal/tilemath"
)

// DownloadTile is the downloadTile convenience shared by every backend:
// HTTP GET the tile from urlTemplate (with {z}/{x}/{y} substituted,
// flipping y first if scheme is SchemeTMS), retried maxTry times, then
// PutTile it into the store.
func DownloadTile(ctx context.Context, client *http.Client, s Store, urlTemplate string, scheme tilemath.Scheme, z, x, y int32, maxTry int, timeout time.Duration, storeTransparent bool) error {
	tmpY := tilemath.FlipForScheme(scheme, z, y)
	url := strings.NewReplacer(
		"{z}", strconv.Itoa(int(z)),
		"{x}", strconv.Itoa(int(x)),
		"{y}", strconv.Itoa(int(tmpY)),
	).Replace(urlTemplate)

	var data []byte
	err := netutil.Retry(ctx, maxTry, 200*time.Millisecond, func() error {
		body, fetchErr := netutil.HTTPGet(ctx, client, url, timeout)
		if fetchErr != nil {
			return fetchErr
		}
		data = body
		return nil
	})
	if err != nil {
		return err
	}

	info := imgformat.Detect(data)
	return s.PutTile(ctx, z, x, y, data, info.ContentType, string(info.Encoding), storeTransparent)
}
