package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/cache"
)

// MemRepository stages chunk bytes on the local filesystem under baseDir and
// keeps session metadata in the generic Cache[T]. clipcut-server uses the
// jobstore-backed Repository; this one is used by tests.
type MemRepository struct {
	baseDir  string
	sessions *cache.Cache[*Session]
	mu       sync.Mutex // guards bitmap mutation across all sessions
}

func NewMemRepository(baseDir string) (*MemRepository, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: creating staging dir: %w", err)
	}
	return &MemRepository{baseDir: baseDir, sessions: cache.New[*Session]()}, nil
}

func (r *MemRepository) Create(ctx context.Context, s *Session) error {
	if err := os.MkdirAll(r.sessionDir(s.ID), 0o755); err != nil {
		return fmt.Errorf("upload: creating session dir: %w", err)
	}
	r.sessions.Store(s.ID, s)
	return nil
}

func (r *MemRepository) Get(ctx context.Context, id string) (*Session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *MemRepository) SaveChunk(ctx context.Context, id string, index int, length int64, rd io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if index < 0 || index >= s.TotalChunks {
		return apierrors.New(apierrors.KindInvalidParameters, "chunk index out of range")
	}
	if s.ReceivedBitmap[index] {
		if s.ChunkLengths[index] != length {
			return apierrors.New(apierrors.KindConflict, "chunk already received with a different length")
		}
		return nil // idempotent re-send of an identical chunk
	}

	f, err := os.Create(r.chunkPath(id, index))
	if err != nil {
		return fmt.Errorf("upload: creating chunk file: %w", err)
	}
	defer f.Close()
	n, err := io.Copy(f, rd)
	if err != nil {
		return apierrors.Wrap(apierrors.KindUnreadable, "writing chunk to staging area", err)
	}
	if n != length {
		return apierrors.New(apierrors.KindConflict, "chunk length did not match declared length")
	}

	s.ReceivedBitmap[index] = true
	s.ChunkLengths[index] = length
	return nil
}

func (r *MemRepository) OpenChunks(ctx context.Context, id string) ([]io.ReadCloser, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	readers := make([]io.ReadCloser, 0, s.TotalChunks)
	for i := 0; i < s.TotalChunks; i++ {
		f, err := os.Open(r.chunkPath(id, i))
		if err != nil {
			for _, opened := range readers {
				opened.Close()
			}
			return nil, fmt.Errorf("upload: opening chunk %d: %w", i, err)
		}
		readers = append(readers, f)
	}
	return readers, nil
}

func (r *MemRepository) Delete(ctx context.Context, id string) error {
	r.sessions.Remove(id)
	return os.RemoveAll(r.sessionDir(id))
}

func (r *MemRepository) ListExpired(ctx context.Context) ([]string, error) {
	var expired []string
	now := nowFunc()
	for _, id := range r.sessions.Keys() {
		s, ok := r.sessions.Get(id)
		if ok && s.expired(now) {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (r *MemRepository) sessionDir(id string) string {
	return filepath.Join(r.baseDir, id)
}

func (r *MemRepository) chunkPath(id string, index int) string {
	return filepath.Join(r.sessionDir(id), fmt.Sprintf("chunk-%09d", index))
}
