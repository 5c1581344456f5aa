package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PutTranscript persists (or replaces) the transcribe stage's segment list
// for a job, so downstream social-copy collaborators can read it without
// re-running ASR.
func (db *DB) PutTranscript(ctx context.Context, jobID string, segments []TranscriptSegment) error {
	body, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("jobstore: marshaling transcript: %w", err)
	}
	_, err = db.sql.ExecContext(ctx, `
		INSERT INTO transcripts (job_id, segments_json) VALUES (?, ?)
		ON CONFLICT (job_id) DO UPDATE SET segments_json = excluded.segments_json`,
		jobID, string(body))
	if err != nil {
		return fmt.Errorf("jobstore: upserting transcript: %w", err)
	}
	return nil
}

func (db *DB) GetTranscript(ctx context.Context, jobID string) ([]TranscriptSegment, error) {
	var body string
	err := db.sql.QueryRowContext(ctx, `SELECT segments_json FROM transcripts WHERE job_id = ?`, jobID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: fetching transcript: %w", err)
	}
	var segments []TranscriptSegment
	if err := json.Unmarshal([]byte(body), &segments); err != nil {
		return nil, fmt.Errorf("jobstore: unmarshaling transcript: %w", err)
	}
	return segments, nil
}
