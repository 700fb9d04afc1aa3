// Package netutil wraps SQL statements and HTTP requests with explicit
// deadlines and a small retry helper, per the file & DB primitives
// component. The teacher never reaches for a retry library (no retry
// library appears anywhere in the retrieval pack either), so this one
// ambient concern stays on context.Context + a manual loop; see
// DESIGN.md.
package netutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tilecached/tilecached/internal/tileerr"
)

// QueryRowTimeout runs db.QueryRowContext under the given deadline. The
// returned cancel func must be called once Scan has been called on the
// result (deferring it immediately after this call is the normal usage).
func QueryRowTimeout(ctx context.Context, db *sql.DB, timeout time.Duration, query string, args ...any) (*sql.Row, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return db.QueryRowContext(ctx, query, args...), cancel
}

// ExecTimeout runs db.ExecContext under the given deadline.
func ExecTimeout(ctx context.Context, db *sql.DB, timeout time.Duration, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("netutil: exec timeout: %w", tileerr.OperationTimeout)
		}
		return nil, err
	}
	return res, nil
}

// QueryTimeout runs db.QueryContext under the given deadline.
func QueryTimeout(ctx context.Context, db *sql.DB, timeout time.Duration, query string, args ...any) (*sql.Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("netutil: query timeout: %w", tileerr.OperationTimeout)
		}
		return nil, err
	}
	return rows, nil
}

// HTTPGet issues a GET under the given deadline. Status 200 returns the
// body bytes; any other status returns a *tileerr.RemoteStatus wrapping
// the code (204/404 are not retried by Retry, see tileerr.IsAbsent).
func HTTPGet(ctx context.Context, client *http.Client, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("netutil: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("netutil: get timeout: %w", tileerr.OperationTimeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &tileerr.RemoteStatus{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("netutil: read body: %w", err)
	}
	return body, nil
}

// HTTPPost issues a POST with the given body under the given deadline.
func HTTPPost(ctx context.Context, client *http.Client, url, contentType string, body io.Reader, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("netutil: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("netutil: post timeout: %w", tileerr.OperationTimeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &tileerr.RemoteStatus{Code: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

// Retry calls fn up to maxTry times, waiting after between attempts. A
// RemoteStatus error that tileerr.IsAbsent reports true for is returned
// immediately without retrying. The last failure is returned verbatim.
func Retry(ctx context.Context, maxTry int, after time.Duration, fn func() error) error {
	if maxTry < 1 {
		maxTry = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxTry; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if tileerr.IsAbsent(lastErr) {
			return lastErr
		}
		if attempt == maxTry-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(after):
		}
	}
	return lastErr
}
