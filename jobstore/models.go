package jobstore

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

type PriorityClass string

const (
	PriorityInteractive PriorityClass = "interactive"
	PriorityBatch       PriorityClass = "batch"
)

// JobOptions is the typed, schema-validated options bag attached to a job.
type JobOptions struct {
	AddCaptions      bool     `json:"add_captions"`
	CaptionStyle     string   `json:"caption_style,omitempty"`
	AspectRatio      string   `json:"aspect_ratio"`
	TargetPlatforms  []string `json:"target_platforms,omitempty"`
	ClipDurationHint *float64 `json:"clip_duration_hint,omitempty"`
	QualityPreset    string   `json:"quality_preset"`
}

// JobError is the typed error descriptor persisted on a FAILED job.
type JobError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// JobResults is the typed results payload of a COMPLETED job.
type JobResults struct {
	TotalClips int `json:"total_clips"`
}

// Progress is the phase/percent/description triple tracked on every job.
type Progress struct {
	Phase       string
	Percent     int
	Description string
}

type Job struct {
	ID             string
	PrincipalID    string
	Type           string
	InputBlobID    string
	Options        JobOptions
	Status         Status
	Progress       Progress
	Error          *JobError
	Results        *JobResults
	Attempts       int
	PriorityClass  PriorityClass
	WorkerLease    string
	LeaseExpiresAt *time.Time
	RetryAfter     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

type TranscriptSegment struct {
	Start float64         `json:"start"`
	End   float64         `json:"end"`
	Text  string          `json:"text"`
	Words []WordTiming    `json:"words,omitempty"`
}

type WordTiming struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type Artifact struct {
	ID              string
	JobID           string
	Ordinal         int
	BlobID          string
	Duration        float64
	SourceStart     float64
	SourceEnd       float64
	AspectRatio     string
	CaptionsAdded   bool
	ViralScore      float64
	CaptionTrackID  string
	ThumbnailBlobID string
}
