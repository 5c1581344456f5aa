package jobstore

import (
	"context"
	"fmt"
	"time"
)

// RegisterBlob upserts the `blobs` metadata row and increments its
// refcount; every producer that points a job/artifact at a digest calls
// this, so a blob is only eligible for eviction once its refcount reaches 0.
func (db *DB) RegisterBlob(ctx context.Context, id string, size int64, contentType string) error {
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO blobs (id, size, content_type, created_at, refcount) VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (id) DO UPDATE SET refcount = refcount + 1`,
		id, size, contentType, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("jobstore: registering blob %s: %w", id, err)
	}
	return nil
}

// ReleaseBlob decrements a blob's refcount; called when a job referencing it
// is deleted. The blob's bytes are not removed from the blob store here —
// cold-storage/GC policy is out of this core's scope.
func (db *DB) ReleaseBlob(ctx context.Context, id string) error {
	_, err := db.sql.ExecContext(ctx, `UPDATE blobs SET refcount = MAX(0, refcount - 1) WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("jobstore: releasing blob %s: %w", id, err)
	}
	return nil
}

// BlobExists reports whether id has a registered metadata row, used by crash
// recovery to validate a RUNNING job's input blob still exists.
func (db *DB) BlobExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM blobs WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("jobstore: checking blob existence: %w", err)
	}
	return n > 0, nil
}
