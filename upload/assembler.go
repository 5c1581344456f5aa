package upload

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/blob"
	"github.com/clipcut/clipcut-api/log"
)

// Clock is swapped for a clock.Mock in tests so TTL expiry is deterministic.
var Clock clock.Clock = clock.New()

func nowFunc() time.Time { return Clock.Now() }

// Assembler implements the init/write_chunk/complete/abort operations over a
// Repository and a blob Store.
type Assembler struct {
	repo              Repository
	store             *blob.Store
	maxUploadBytes    int64
	defaultChunkBytes int64
	ttl               time.Duration
	allowedExtensions map[string]bool
}

func NewAssembler(repo Repository, store *blob.Store, maxUploadBytes, defaultChunkBytes int64, ttl time.Duration, allowedExtensions []string) *Assembler {
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Assembler{
		repo:              repo,
		store:             store,
		maxUploadBytes:    maxUploadBytes,
		defaultChunkBytes: defaultChunkBytes,
		ttl:               ttl,
		allowedExtensions: allowed,
	}
}

// InitResult is the response shape of the init operation.
type InitResult struct {
	UploadID    string
	ChunkSize   int64
	TotalChunks int
	ExpiresAt   time.Time
}

// Init validates the declared upload parameters and creates a new Session.
func (a *Assembler) Init(ctx context.Context, principalID, filename string, size int64, contentType string, chunkSize int64) (InitResult, error) {
	if principalID == "" || filename == "" || size <= 0 {
		return InitResult{}, apierrors.New(apierrors.KindInvalidParameters, "principal, filename, and a positive size are required")
	}
	if size > a.maxUploadBytes {
		return InitResult{}, apierrors.New(apierrors.KindOversize, "declared size exceeds the maximum accepted upload size")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !a.allowedExtensions[ext] {
		return InitResult{}, apierrors.New(apierrors.KindRejectedType, "file extension is not accepted")
	}

	if chunkSize <= 0 {
		chunkSize = a.defaultChunkBytes
	}
	totalChunks := int((size + chunkSize - 1) / chunkSize)

	s := &Session{
		ID:             uuid.NewString(),
		PrincipalID:    principalID,
		Filename:       filename,
		DeclaredSize:   size,
		DeclaredType:   contentType,
		ChunkSize:      chunkSize,
		TotalChunks:    totalChunks,
		ReceivedBitmap: make([]bool, totalChunks),
		ChunkLengths:   make([]int64, totalChunks),
		ExpiresAt:      nowFunc().Add(a.ttl),
		CreatedAt:      nowFunc(),
	}
	if err := a.repo.Create(ctx, s); err != nil {
		return InitResult{}, apierrors.Wrap(apierrors.KindTransientIO, "creating upload session", err)
	}
	log.Log(s.ID, "upload session created", "principal_id", principalID, "filename", filename, "size", size, "total_chunks", totalChunks)

	return InitResult{UploadID: s.ID, ChunkSize: chunkSize, TotalChunks: totalChunks, ExpiresAt: s.ExpiresAt}, nil
}

// WriteChunk accepts the bytes for chunk index of uploadID, owned by
// principalID. It is idempotent for an identical re-send of an
// already-received index.
func (a *Assembler) WriteChunk(ctx context.Context, principalID, uploadID string, index int, length int64, r io.Reader) error {
	s, err := a.getOwned(ctx, principalID, uploadID)
	if err != nil {
		return err
	}
	if nowFunc().After(s.ExpiresAt) {
		return apierrors.New(apierrors.KindExpired, "upload session has expired")
	}
	if index < 0 || index >= s.TotalChunks {
		return apierrors.New(apierrors.KindInvalidParameters, "chunk index out of range")
	}
	if want := s.expectedChunkLen(index); length != want {
		return apierrors.New(apierrors.KindConflict, "chunk length does not match the session's chunk size")
	}
	if err := a.repo.SaveChunk(ctx, uploadID, index, length, r); err != nil {
		return err
	}
	return nil
}

// Complete streams every chunk of uploadID, in index order, into the Blob
// Store, then deletes the session. The resulting blob's digest is computed
// over the assembled stream, never trusted from the client.
func (a *Assembler) Complete(ctx context.Context, principalID, uploadID string) (blob.Descriptor, error) {
	s, err := a.getOwned(ctx, principalID, uploadID)
	if err != nil {
		return blob.Descriptor{}, err
	}
	if !s.complete() {
		return blob.Descriptor{}, apierrors.New(apierrors.KindIncomplete, "not all chunks have been received")
	}

	readers, err := a.repo.OpenChunks(ctx, uploadID)
	if err != nil {
		return blob.Descriptor{}, apierrors.Wrap(apierrors.KindTransientIO, "opening staged chunks", err)
	}
	defer func() {
		for _, rc := range readers {
			rc.Close()
		}
	}()

	streams := make([]io.Reader, len(readers))
	for i, rc := range readers {
		streams[i] = rc
	}

	desc, err := a.store.Put(ctx, io.MultiReader(streams...))
	if err != nil {
		return blob.Descriptor{}, err
	}
	if desc.Size != s.DeclaredSize {
		return blob.Descriptor{}, apierrors.New(apierrors.KindIncomplete, "assembled size does not match declared size")
	}

	if err := a.repo.Delete(ctx, uploadID); err != nil {
		log.LogError(uploadID, "error deleting completed upload session", err)
	}
	log.Log(uploadID, "upload completed", "blob_id", desc.ID, "size", desc.Size)
	return desc, nil
}

// Abort discards a session and its staged bytes without promoting it to a
// blob.
func (a *Assembler) Abort(ctx context.Context, principalID, uploadID string) error {
	if _, err := a.getOwned(ctx, principalID, uploadID); err != nil {
		return err
	}
	return a.repo.Delete(ctx, uploadID)
}

// SweepExpired deletes every session past its TTL; called on a timer by
// clipcut-server.
func (a *Assembler) SweepExpired(ctx context.Context) (int, error) {
	ids, err := a.repo.ListExpired(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := a.repo.Delete(ctx, id); err != nil {
			log.LogError(id, "error deleting expired upload session", err)
		}
	}
	return len(ids), nil
}

func (a *Assembler) getOwned(ctx context.Context, principalID, uploadID string) (*Session, error) {
	s, err := a.repo.Get(ctx, uploadID)
	if err != nil {
		return nil, apierrors.New(apierrors.KindNotFound, "upload session not found")
	}
	if s.PrincipalID != principalID {
		return nil, apierrors.New(apierrors.KindForbidden, "upload session does not belong to this principal")
	}
	return s, nil
}
