package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/clipcut/clipcut-api/upload"
)

// UploadRepository implements upload.Repository on top of the sqlite
// database for session metadata/bitmap, and the local filesystem (under
// chunkDir) for the chunk bytes themselves — sqlite is a poor fit for
// multi-megabyte BLOB churn, so only the small bitmap/length arrays live in
// the database row.
type UploadRepository struct {
	db       *DB
	chunkDir string
}

func NewUploadRepository(db *DB, chunkDir string) (*UploadRepository, error) {
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("jobstore: creating chunk staging dir: %w", err)
	}
	return &UploadRepository{db: db, chunkDir: chunkDir}, nil
}

var _ upload.Repository = (*UploadRepository)(nil)

func (r *UploadRepository) Create(ctx context.Context, s *upload.Session) error {
	bitmap := encodeBoolBitmap(s.ReceivedBitmap)
	lengths := encodeInt64s(s.ChunkLengths)
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO uploads (id, principal_id, filename, size, declared_type, chunk_size, total_chunks,
			received_bitmap, chunk_lengths, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PrincipalID, s.Filename, s.DeclaredSize, s.DeclaredType, s.ChunkSize, s.TotalChunks,
		bitmap, lengths, s.ExpiresAt.Format(timeLayout), s.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("jobstore: inserting upload session: %w", err)
	}
	return os.MkdirAll(r.sessionDir(s.ID), 0o755)
}

func (r *UploadRepository) Get(ctx context.Context, id string) (*upload.Session, error) {
	row := r.db.sql.QueryRowContext(ctx, `
		SELECT id, principal_id, filename, size, declared_type, chunk_size, total_chunks,
			received_bitmap, chunk_lengths, expires_at, created_at
		FROM uploads WHERE id = ?`, id)

	var s upload.Session
	var bitmap, lengths []byte
	var expires, created string
	err := row.Scan(&s.ID, &s.PrincipalID, &s.Filename, &s.DeclaredSize, &s.DeclaredType, &s.ChunkSize,
		&s.TotalChunks, &bitmap, &lengths, &expires, &created)
	if err == sql.ErrNoRows {
		return nil, upload.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: scanning upload session: %w", err)
	}
	s.ReceivedBitmap = decodeBoolBitmap(bitmap, s.TotalChunks)
	s.ChunkLengths = decodeInt64s(lengths, s.TotalChunks)
	s.ExpiresAt, _ = time.Parse(timeLayout, expires)
	s.CreatedAt, _ = time.Parse(timeLayout, created)
	return &s, nil
}

func (r *UploadRepository) SaveChunk(ctx context.Context, id string, index int, length int64, rd io.Reader) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if index < 0 || index >= s.TotalChunks {
		return fmt.Errorf("jobstore: chunk index %d out of range", index)
	}
	if s.ReceivedBitmap[index] {
		if s.ChunkLengths[index] != length {
			return fmt.Errorf("jobstore: chunk %d already received with a different length", index)
		}
		return nil
	}

	f, err := os.Create(r.chunkPath(id, index))
	if err != nil {
		return fmt.Errorf("jobstore: creating chunk file: %w", err)
	}
	n, err := io.Copy(f, rd)
	f.Close()
	if err != nil {
		return fmt.Errorf("jobstore: writing chunk: %w", err)
	}
	if n != length {
		return fmt.Errorf("jobstore: chunk %d wrote %d bytes, expected %d", index, n, length)
	}

	s.ReceivedBitmap[index] = true
	s.ChunkLengths[index] = length
	_, err = r.db.sql.ExecContext(ctx, `UPDATE uploads SET received_bitmap = ?, chunk_lengths = ? WHERE id = ?`,
		encodeBoolBitmap(s.ReceivedBitmap), encodeInt64s(s.ChunkLengths), id)
	if err != nil {
		return fmt.Errorf("jobstore: persisting chunk bitmap: %w", err)
	}
	return nil
}

func (r *UploadRepository) OpenChunks(ctx context.Context, id string) ([]io.ReadCloser, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	readers := make([]io.ReadCloser, 0, s.TotalChunks)
	for i := 0; i < s.TotalChunks; i++ {
		f, err := os.Open(r.chunkPath(id, i))
		if err != nil {
			for _, opened := range readers {
				opened.Close()
			}
			return nil, fmt.Errorf("jobstore: opening chunk %d: %w", i, err)
		}
		readers = append(readers, f)
	}
	return readers, nil
}

func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.sql.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("jobstore: deleting upload session: %w", err)
	}
	return os.RemoveAll(r.sessionDir(id))
}

func (r *UploadRepository) ListExpired(ctx context.Context) ([]string, error) {
	rows, err := r.db.sql.QueryContext(ctx, `SELECT id FROM uploads WHERE expires_at < ?`, nowString())
	if err != nil {
		return nil, fmt.Errorf("jobstore: listing expired upload sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UploadRepository) sessionDir(id string) string { return filepath.Join(r.chunkDir, id) }
func (r *UploadRepository) chunkPath(id string, index int) string {
	return filepath.Join(r.sessionDir(id), fmt.Sprintf("chunk-%09d", index))
}

func encodeBoolBitmap(bits []bool) []byte {
	out := make([]byte, len(bits))
	for i, b := range bits {
		if b {
			out[i] = 1
		}
	}
	return out
}

func decodeBoolBitmap(raw []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n && i < len(raw); i++ {
		out[i] = raw[i] != 0
	}
	return out
}

func encodeInt64s(vals []int64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		for b := 0; b < 8; b++ {
			out[i*8+b] = byte(v >> (8 * b))
		}
	}
	return out
}

func decodeInt64s(raw []byte, n int) []int64 {
	out := make([]int64, n)
	for i := 0; i < n && (i+1)*8 <= len(raw); i++ {
		var v int64
		for b := 0; b < 8; b++ {
			v |= int64(raw[i*8+b]) << (8 * b)
		}
		out[i] = v
	}
	return out
}
