// Package lockfile implements scoped, exclusive-create lock files guarding
// atomic writes and removes to the directory+sidecar store, following the
// file & DB primitives component. It generalizes the directory-creation
// and best-effort-cleanup style the teacher uses in
// internal/renderer/multipass.go (os.MkdirAll + defer-cleanup-on-error).
package lockfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tilecached/tilecached/internal/tileerr"
)

const pollInterval = 50 * time.Millisecond

// acquire creates path+".lock" exclusively, retrying every pollInterval
// until ctx is done.
func acquire(ctx context.Context, target string) (string, error) {
	lockPath := target + ".lock"
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return lockPath, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("lockfile: create %s: %w", lockPath, err)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("lockfile: acquire %s: %w", target, tileerr.LockTimeout)
		case <-time.After(pollInterval):
		}
	}
}

// WriteFile acquires target+".lock", writes data to target+".tmp", and
// atomically renames it onto target. On any error inside the critical
// section the temp file and the lock are both removed.
func WriteFile(ctx context.Context, target string, data []byte, perm os.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("lockfile: mkdir %s: %w", filepath.Dir(target), err)
	}

	lockPath, err := acquire(ctx, target)
	if err != nil {
		return err
	}

	tmpPath := target + ".tmp"
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
		os.Remove(lockPath)
	}()

	if err = os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", tmpPath, err)
	}
	if err = os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("lockfile: rename %s -> %s: %w", tmpPath, target, err)
	}
	return nil
}

// RemoveFile acquires target+".lock" and removes target. A missing
// target is treated as success.
func RemoveFile(ctx context.Context, target string) (err error) {
	lockPath, err := acquire(ctx, target)
	if err != nil {
		return err
	}
	defer os.Remove(lockPath)

	if err = os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: remove %s: %w", target, err)
	}
	return nil
}
