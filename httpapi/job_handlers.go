package httpapi

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/blob"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/log"
	"github.com/clipcut/clipcut-api/middleware"
)

type submitJobRequest struct {
	BlobID  string             `json:"blob_id"`
	Options jobstore.JobOptions `json:"options"`
}

type artifactDTO struct {
	ID              string  `json:"id"`
	Ordinal         int     `json:"ordinal"`
	ClipURL         string  `json:"clip_url"`
	ThumbnailURL    string  `json:"thumbnail_url,omitempty"`
	Duration        float64 `json:"duration"`
	SourceStart     float64 `json:"source_start"`
	SourceEnd       float64 `json:"source_end"`
	AspectRatio     string  `json:"aspect_ratio"`
	CaptionsAdded   bool    `json:"captions_added"`
	ViralScore      float64 `json:"viral_score"`
}

type jobDTO struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Phase       string         `json:"phase"`
	Percent     int            `json:"percent"`
	Description string         `json:"description,omitempty"`
	Error       *jobstore.JobError `json:"error,omitempty"`
	Results     *jobstore.JobResults `json:"results,omitempty"`
	Artifacts   []artifactDTO  `json:"artifacts,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// SubmitJob handles POST /jobs.
func (h *Handlers) SubmitJob() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		principalID := middleware.Principal(r)

		var req submitJobRequest
		if err := decodeValidated(r, "SubmitJob", &req); err != nil {
			apierrors.WriteHTTP(w, "", err)
			return
		}

		exists, err := h.Blobs.Exists(r.Context(), req.BlobID)
		if err != nil {
			apierrors.WriteHTTP(w, "", apierrors.Wrap(apierrors.KindTransientIO, "checking input blob", err))
			return
		}
		if !exists {
			apierrors.WriteHTTP(w, "", apierrors.New(apierrors.KindNotFound, "input blob not found"))
			return
		}

		id, err := h.Scheduler.Submit(r.Context(), principalID, req.BlobID, req.Options)
		if err != nil {
			apierrors.WriteHTTP(w, "", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// GetJob handles GET /jobs/:id. A COMPLETED job's response embeds its
// artifact list, presigned to a fetchable URL, rather than requiring a
// second round trip to a dedicated artifacts route.
func (h *Handlers) GetJob() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principalID := middleware.Principal(r)
		jobID := ps.ByName("id")

		job, err := h.Scheduler.Status(r.Context(), jobID, principalID)
		if err != nil {
			apierrors.WriteHTTP(w, jobID, err)
			return
		}

		dto := jobToDTO(job)
		if job.Status == jobstore.StatusCompleted {
			artifacts, aerr := h.DB.ListArtifactsByJob(r.Context(), jobID)
			if aerr != nil {
				apierrors.WriteHTTP(w, jobID, apierrors.Wrap(apierrors.KindInternal, "loading artifacts", aerr))
				return
			}
			dto.Artifacts = make([]artifactDTO, 0, len(artifacts))
			for _, a := range artifacts {
				dto.Artifacts = append(dto.Artifacts, h.artifactToDTO(jobID, a))
			}
		}
		writeJSON(w, http.StatusOK, dto)
	}
}

// CancelJob handles POST /jobs/:id/cancel.
func (h *Handlers) CancelJob() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principalID := middleware.Principal(r)
		jobID := ps.ByName("id")

		if err := h.Scheduler.Cancel(r.Context(), jobID, principalID); err != nil {
			apierrors.WriteHTTP(w, jobID, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListJobs handles GET /jobs, filtered/paginated in-memory since the job
// store's query surface only offers an unfiltered per-principal listing.
func (h *Handlers) ListJobs() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		principalID := middleware.Principal(r)

		jobs, err := h.DB.ListByPrincipal(r.Context(), principalID)
		if err != nil {
			apierrors.WriteHTTP(w, "", apierrors.Wrap(apierrors.KindInternal, "listing jobs", err))
			return
		}

		q := r.URL.Query()
		statusFilter := jobstore.Status(q.Get("status"))
		typeFilter := q.Get("type")
		var since, until time.Time
		if v := q.Get("since"); v != "" {
			since, _ = time.Parse(time.RFC3339, v)
		}
		if v := q.Get("until"); v != "" {
			until, _ = time.Parse(time.RFC3339, v)
		}

		filtered := make([]*jobstore.Job, 0, len(jobs))
		for _, j := range jobs {
			if statusFilter != "" && j.Status != statusFilter {
				continue
			}
			if typeFilter != "" && j.Type != typeFilter {
				continue
			}
			if !since.IsZero() && j.CreatedAt.Before(since) {
				continue
			}
			if !until.IsZero() && j.CreatedAt.After(until) {
				continue
			}
			filtered = append(filtered, j)
		}
		sort.Slice(filtered, func(i, k int) bool {
			return filtered[i].CreatedAt.After(filtered[k].CreatedAt)
		})

		limit := 50
		if v, perr := strconv.Atoi(q.Get("limit")); perr == nil && v > 0 && v <= 200 {
			limit = v
		}
		offset := 0
		if v, perr := strconv.Atoi(q.Get("offset")); perr == nil && v >= 0 {
			offset = v
		}
		total := len(filtered)
		if offset > total {
			offset = total
		}
		end := offset + limit
		if end > total {
			end = total
		}
		page := filtered[offset:end]

		dtos := make([]jobDTO, 0, len(page))
		for _, j := range page {
			dtos = append(dtos, jobToDTO(j))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"jobs":  dtos,
			"total": total,
		})
	}
}

func jobToDTO(j *jobstore.Job) jobDTO {
	return jobDTO{
		ID:          j.ID,
		Status:      string(j.Status),
		Phase:       j.Progress.Phase,
		Percent:     j.Progress.Percent,
		Description: j.Progress.Description,
		Error:       j.Error,
		Results:     j.Results,
		CreatedAt:   j.CreatedAt.UTC().Format(rfc3339Millis),
		UpdatedAt:   j.UpdatedAt.UTC().Format(rfc3339Millis),
	}
}

func (h *Handlers) artifactToDTO(jobID string, a *jobstore.Artifact) artifactDTO {
	dto := artifactDTO{
		ID:            a.ID,
		Ordinal:       a.Ordinal,
		Duration:      a.Duration,
		SourceStart:   a.SourceStart,
		SourceEnd:     a.SourceEnd,
		AspectRatio:   a.AspectRatio,
		CaptionsAdded: a.CaptionsAdded,
		ViralScore:    a.ViralScore,
	}
	if url, err := h.Blobs.Presign(a.BlobID); err == nil {
		dto.ClipURL = url
	} else {
		// Local-file driver: no presigned URL exists, so point at this
		// process's own byte-serving route instead of emitting an empty URL.
		dto.ClipURL = "/jobs/" + jobID + "/artifacts/" + a.ID + "/download"
	}
	if a.ThumbnailBlobID != "" {
		if url, err := h.Blobs.Presign(a.ThumbnailBlobID); err == nil {
			dto.ThumbnailURL = url
		} else {
			dto.ThumbnailURL = "/jobs/" + jobID + "/artifacts/" + a.ID + "/thumbnail"
		}
	}
	return dto
}

// DownloadArtifact handles GET /jobs/:id/artifacts/:artifactId/download and
// .../thumbnail, streaming blob bytes directly. It exists for the local-file
// blob driver, whose Presign always returns drivers.ErrNotSupported; an
// S3-backed deployment serves artifacts via the presigned clip_url/
// thumbnail_url instead and this route is simply unused.
func (h *Handlers) DownloadArtifact(thumbnail bool) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principalID := middleware.Principal(r)
		jobID := ps.ByName("id")
		artifactID := ps.ByName("artifactId")

		if _, err := h.Scheduler.Status(r.Context(), jobID, principalID); err != nil {
			apierrors.WriteHTTP(w, jobID, err)
			return
		}

		artifact, err := h.DB.GetArtifact(r.Context(), artifactID)
		if err != nil || artifact.JobID != jobID {
			apierrors.WriteHTTP(w, jobID, apierrors.New(apierrors.KindNotFound, "artifact not found"))
			return
		}

		blobID := artifact.BlobID
		if thumbnail {
			blobID = artifact.ThumbnailBlobID
		}
		if blobID == "" {
			apierrors.WriteHTTP(w, jobID, apierrors.New(apierrors.KindNotFound, "no thumbnail for this artifact"))
			return
		}

		rc, err := h.Blobs.Open(r.Context(), blobID)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				apierrors.WriteHTTP(w, jobID, apierrors.New(apierrors.KindNotFound, "blob not found"))
				return
			}
			apierrors.WriteHTTP(w, jobID, apierrors.Wrap(apierrors.KindTransientIO, "opening blob", err))
			return
		}
		defer rc.Close()

		w.Header().Set("Cache-Control", "private, max-age=86400")
		if _, err := io.Copy(w, rc); err != nil {
			log.LogError(jobID, "error streaming artifact bytes", err)
		}
	}
}
