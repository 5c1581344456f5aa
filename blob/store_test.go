package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("file://" + t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPutComputesContentAddressedDigest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := []byte("some clip bytes, not really a video")
	desc, err := s.Put(ctx, bytes.NewReader(payload))
	require.NoError(t, err)

	require.Equal(t, int64(len(payload)), desc.Size)
	require.NotEmpty(t, desc.ID)

	rc, err := s.Open(ctx, desc.ID)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestPutIsIdempotentForIdenticalContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := []byte("identical bytes twice over")
	d1, err := s.Put(ctx, bytes.NewReader(payload))
	require.NoError(t, err)
	d2, err := s.Put(ctx, bytes.NewReader(payload))
	require.NoError(t, err)

	require.Equal(t, d1.ID, d2.ID, "same content must yield the same digest/object name")
}

func TestPutDistinctContentYieldsDistinctDigests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d1, err := s.Put(ctx, bytes.NewReader([]byte("alpha")))
	require.NoError(t, err)
	d2, err := s.Put(ctx, bytes.NewReader([]byte("beta")))
	require.NoError(t, err)

	require.NotEqual(t, d1.ID, d2.ID)
}

func TestOpenMissingBlobReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Open(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutDetectsContentTypeFromBytesNotExtension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// PNG magic bytes; client never declares a content type, so this must
	// be sniffed from the payload itself.
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	desc, err := s.Put(ctx, bytes.NewReader(png))
	require.NoError(t, err)
	require.Equal(t, "image/png", desc.ContentType)
}

func TestExistsReflectsBackendState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "neverwritten")
	require.NoError(t, err)
	require.False(t, ok)

	desc, err := s.Put(ctx, bytes.NewReader([]byte("present")))
	require.NoError(t, err)

	ok, err = s.Exists(ctx, desc.ID)
	require.NoError(t, err)
	require.True(t, ok)
}
