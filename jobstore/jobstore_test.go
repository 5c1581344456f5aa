package jobstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "clipcut.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndGetJobRoundTrips(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	opts := JobOptions{AddCaptions: true, AspectRatio: "9:16", QualityPreset: "medium"}
	id, err := db.CreateJob(ctx, "principal-1", "VIDEOCLIP", "deadbeef", opts, PriorityBatch)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	j, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, j.Status)
	require.Equal(t, opts, j.Options)
	require.Equal(t, 0, j.Progress.Percent)
	require.Equal(t, 0, j.Attempts)
}

func TestDispatchMovesJobToRunningAndResetsProgress(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, "p1", "VIDEOCLIP", "blob1", JobOptions{AspectRatio: "9:16"}, PriorityBatch)
	require.NoError(t, err)

	require.ErrorIs(t, db.UpdateProgress(ctx, id, Progress{Phase: "probe", Percent: 5}), ErrJobNotFound)
	// not RUNNING yet, so this must be a no-op error (ErrJobNotFound from the WHERE status=RUNNING guard)
	err = db.UpdateProgress(ctx, id, Progress{Phase: "probe", Percent: 5})
	require.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, db.Dispatch(ctx, id, "lease-1", time.Now().Add(time.Minute)))
	j, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, j.Status)
	require.Equal(t, 0, j.Progress.Percent)

	require.NoError(t, db.UpdateProgress(ctx, id, Progress{Phase: "probe", Percent: 10, Description: "probing"}))
	j, err = db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 10, j.Progress.Percent)
}

func TestCompleteRequiresRunningStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, "p1", "VIDEOCLIP", "blob1", JobOptions{}, PriorityBatch)
	require.NoError(t, err)

	err = db.Complete(ctx, id, JobResults{TotalClips: 3})
	require.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, db.Dispatch(ctx, id, "lease-1", time.Now().Add(time.Minute)))
	require.NoError(t, db.Complete(ctx, id, JobResults{TotalClips: 3}))

	j, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, j.Status)
	require.Equal(t, 100, j.Progress.Percent)
	require.NotNil(t, j.Results)
	require.Equal(t, 3, j.Results.TotalClips)
}

func TestFailRetriesUntilMaxAttempts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, "p1", "VIDEOCLIP", "blob1", JobOptions{}, PriorityBatch)
	require.NoError(t, err)

	transientErr := JobError{Kind: "transient-io", Message: "timed out", Retryable: true}

	for attempt := 0; attempt < 2; attempt++ {
		require.NoError(t, db.Dispatch(ctx, id, "lease", time.Now().Add(time.Minute)))
		require.NoError(t, db.Fail(ctx, id, transientErr, 3, time.Time{}))
		j, err := db.GetJob(ctx, id)
		require.NoError(t, err)
		require.Equal(t, StatusPending, j.Status, "attempt %d should be retried", attempt)
		require.Equal(t, attempt+1, j.Attempts)
	}

	// third failure hits max_attempts=3 and becomes terminal despite being retryable
	require.NoError(t, db.Dispatch(ctx, id, "lease", time.Now().Add(time.Minute)))
	require.NoError(t, db.Fail(ctx, id, transientErr, 3, time.Time{}))
	j, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, j.Status)
	require.Equal(t, 3, j.Attempts)
}

func TestCancelIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, "p1", "VIDEOCLIP", "blob1", JobOptions{}, PriorityBatch)
	require.NoError(t, err)

	require.NoError(t, db.Cancel(ctx, id))
	j, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, j.Status)

	require.NoError(t, db.Cancel(ctx, id)) // second cancel is a no-op, not an error
}

func TestReapExpiredLeasesRequeuesUnderMaxAttempts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, "p1", "VIDEOCLIP", "blob1", JobOptions{}, PriorityBatch)
	require.NoError(t, err)
	require.NoError(t, db.Dispatch(ctx, id, "lease-1", time.Now().Add(-time.Second))) // already expired

	n, err := db.ReapExpiredLeases(ctx, 3, func(ctx context.Context, blobID string) (bool, error) { return true, nil })
	require.NoError(t, err)
	require.Equal(t, 1, n)

	j, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, j.Status)
}

func TestInsertAndListArtifacts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, "p1", "VIDEOCLIP", "blob1", JobOptions{}, PriorityBatch)
	require.NoError(t, err)

	require.NoError(t, db.InsertArtifacts(ctx, id, []Artifact{
		{Ordinal: 1, BlobID: "clip1", Duration: 12.5, AspectRatio: "9:16"},
		{Ordinal: 2, BlobID: "clip2", Duration: 9.2, AspectRatio: "9:16"},
	}))

	artifacts, err := db.ListArtifactsByJob(ctx, id)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	require.Equal(t, 1, artifacts[0].Ordinal)
	require.Equal(t, 2, artifacts[1].Ordinal)
}

func TestBlobRefcounting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RegisterBlob(ctx, "digest1", 100, "video/mp4"))
	require.NoError(t, db.RegisterBlob(ctx, "digest1", 100, "video/mp4")) // shared reference

	exists, err := db.BlobExists(ctx, "digest1")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, db.ReleaseBlob(ctx, "digest1"))
	exists, err = db.BlobExists(ctx, "digest1") // refcount decremented but row still present
	require.NoError(t, err)
	require.True(t, exists)
}
