package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrArtifactNotFound = errors.New("jobstore: artifact not found")

// InsertArtifacts writes the final set of clip artifacts for a job in a
// single transaction; ordinals must already be dense within [1, len(rows)].
func (db *DB) InsertArtifacts(ctx context.Context, jobID string, rows []Artifact) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("jobstore: beginning artifact insert tx: %w", err)
	}
	defer tx.Rollback()

	for i := range rows {
		a := &rows[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.JobID = jobID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (id, job_id, ordinal, blob_id, duration, source_start, source_end,
				aspect_ratio, captions_added, viral_score, caption_track_id, thumbnail_blob_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.JobID, a.Ordinal, a.BlobID, a.Duration, a.SourceStart, a.SourceEnd,
			a.AspectRatio, boolToInt(a.CaptionsAdded), a.ViralScore, nullableString(a.CaptionTrackID), nullableString(a.ThumbnailBlobID))
		if err != nil {
			return fmt.Errorf("jobstore: inserting artifact ordinal %d: %w", a.Ordinal, err)
		}
	}
	return tx.Commit()
}

func (db *DB) ListArtifactsByJob(ctx context.Context, jobID string) ([]*Artifact, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT id, job_id, ordinal, blob_id, duration, source_start, source_end, aspect_ratio,
			captions_added, viral_score, caption_track_id, thumbnail_blob_id
		FROM artifacts WHERE job_id = ? ORDER BY ordinal ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("jobstore: listing artifacts: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		var a Artifact
		var captionsAdded int
		var captionTrackID, thumbnailBlobID sql.NullString
		if err := rows.Scan(&a.ID, &a.JobID, &a.Ordinal, &a.BlobID, &a.Duration, &a.SourceStart, &a.SourceEnd,
			&a.AspectRatio, &captionsAdded, &a.ViralScore, &captionTrackID, &thumbnailBlobID); err != nil {
			return nil, fmt.Errorf("jobstore: scanning artifact: %w", err)
		}
		a.CaptionsAdded = captionsAdded != 0
		a.CaptionTrackID = captionTrackID.String
		a.ThumbnailBlobID = thumbnailBlobID.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

// GetArtifact fetches a single artifact, used by the artifact-download
// endpoint; ownership (via the parent job's principal) is checked by the caller.
func (db *DB) GetArtifact(ctx context.Context, artifactID string) (*Artifact, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT id, job_id, ordinal, blob_id, duration, source_start, source_end, aspect_ratio,
			captions_added, viral_score, caption_track_id, thumbnail_blob_id
		FROM artifacts WHERE id = ?`, artifactID)
	var a Artifact
	var captionsAdded int
	var captionTrackID, thumbnailBlobID sql.NullString
	err := row.Scan(&a.ID, &a.JobID, &a.Ordinal, &a.BlobID, &a.Duration, &a.SourceStart, &a.SourceEnd,
		&a.AspectRatio, &captionsAdded, &a.ViralScore, &captionTrackID, &thumbnailBlobID)
	if err == sql.ErrNoRows {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: scanning artifact: %w", err)
	}
	a.CaptionsAdded = captionsAdded != 0
	a.CaptionTrackID = captionTrackID.String
	a.ThumbnailBlobID = thumbnailBlobID.String
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
