package upload

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/blob"
)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	repo, err := NewMemRepository(t.TempDir())
	require.NoError(t, err)
	store, err := blob.New("file://" + t.TempDir())
	require.NoError(t, err)
	return NewAssembler(repo, store, 10*1024*1024, 4, time.Hour, []string{".mp4"})
}

func TestInitRejectsOversizeUpload(t *testing.T) {
	a := newTestAssembler(t)
	_, err := a.Init(context.Background(), "p1", "clip.mp4", 100*1024*1024, "video/mp4", 0)
	var ce *apierrors.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, apierrors.KindOversize, ce.Kind)
}

func TestInitRejectsDisallowedExtension(t *testing.T) {
	a := newTestAssembler(t)
	_, err := a.Init(context.Background(), "p1", "clip.exe", 10, "application/octet-stream", 0)
	var ce *apierrors.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, apierrors.KindRejectedType, ce.Kind)
}

func TestFullUploadRoundTripsBytes(t *testing.T) {
	a := newTestAssembler(t)
	ctx := context.Background()

	payload := []byte("0123456789") // 10 bytes, chunk size 4 -> 3 chunks (4,4,2)
	res, err := a.Init(ctx, "p1", "clip.mp4", int64(len(payload)), "video/mp4", 0)
	require.NoError(t, err)
	require.Equal(t, 3, res.TotalChunks)

	for i := 0; i < res.TotalChunks; i++ {
		start := i * 4
		end := start + 4
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]
		err := a.WriteChunk(ctx, "p1", res.UploadID, i, int64(len(chunk)), bytes.NewReader(chunk))
		require.NoError(t, err)
	}

	desc, err := a.Complete(ctx, "p1", res.UploadID)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), desc.Size)

	rc, err := a.store.Open(ctx, desc.ID)
	require.NoError(t, err)
	defer rc.Close()
	got := make([]byte, len(payload))
	_, err = rc.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWriteChunkIsIdempotentForIdenticalResend(t *testing.T) {
	a := newTestAssembler(t)
	ctx := context.Background()

	res, err := a.Init(ctx, "p1", "clip.mp4", 4, "video/mp4", 0)
	require.NoError(t, err)

	chunk := []byte("abcd")
	require.NoError(t, a.WriteChunk(ctx, "p1", res.UploadID, 0, 4, bytes.NewReader(chunk)))
	require.NoError(t, a.WriteChunk(ctx, "p1", res.UploadID, 0, 4, bytes.NewReader(chunk)))
}

func TestWriteChunkRejectsConflictingRewrite(t *testing.T) {
	a := newTestAssembler(t)
	ctx := context.Background()

	res, err := a.Init(ctx, "p1", "clip.mp4", 8, "video/mp4", 4)
	require.NoError(t, err)

	require.NoError(t, a.WriteChunk(ctx, "p1", res.UploadID, 0, 4, bytes.NewReader([]byte("abcd"))))
	err = a.WriteChunk(ctx, "p1", res.UploadID, 0, 3, bytes.NewReader([]byte("abc")))
	var ce *apierrors.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, apierrors.KindConflict, ce.Kind)
}

func TestCompleteFailsWhenChunksMissing(t *testing.T) {
	a := newTestAssembler(t)
	ctx := context.Background()

	res, err := a.Init(ctx, "p1", "clip.mp4", 8, "video/mp4", 4)
	require.NoError(t, err)
	require.NoError(t, a.WriteChunk(ctx, "p1", res.UploadID, 0, 4, bytes.NewReader([]byte("abcd"))))

	_, err = a.Complete(ctx, "p1", res.UploadID)
	var ce *apierrors.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, apierrors.KindIncomplete, ce.Kind)
}

func TestOtherPrincipalCannotWriteOrComplete(t *testing.T) {
	a := newTestAssembler(t)
	ctx := context.Background()

	res, err := a.Init(ctx, "owner", "clip.mp4", 4, "video/mp4", 0)
	require.NoError(t, err)

	err = a.WriteChunk(ctx, "intruder", res.UploadID, 0, 4, bytes.NewReader([]byte("abcd")))
	var ce *apierrors.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, apierrors.KindForbidden, ce.Kind)
}

func TestSweepExpiredRemovesStaleSessions(t *testing.T) {
	mock := clock.NewMock()
	prev := Clock
	Clock = mock
	defer func() { Clock = prev }()

	a := newTestAssembler(t)
	ctx := context.Background()

	res, err := a.Init(ctx, "p1", "clip.mp4", 4, "video/mp4", 0)
	require.NoError(t, err)

	mock.Add(2 * time.Hour) // well past the 1h TTL used in newTestAssembler

	n, err := a.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = a.repo.Get(ctx, res.UploadID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAbortDeletesSession(t *testing.T) {
	a := newTestAssembler(t)
	ctx := context.Background()

	res, err := a.Init(ctx, "p1", "clip.mp4", 4, "video/mp4", 0)
	require.NoError(t, err)
	require.NoError(t, a.Abort(ctx, "p1", res.UploadID))

	_, err = a.repo.Get(ctx, res.UploadID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
