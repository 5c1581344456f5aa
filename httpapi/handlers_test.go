package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/clipcut/clipcut-api/blob"
	"github.com/clipcut/clipcut-api/eventbus"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/middleware"
	"github.com/clipcut/clipcut-api/scheduler"
	"github.com/clipcut/clipcut-api/upload"
)

// fakeRunner never actually executes a pipeline; these tests exercise the
// HTTP surface, not the media pipeline itself.
type fakeRunner struct {
	fn func(job *jobstore.Job) (jobstore.JobResults, []jobstore.Artifact, []jobstore.TranscriptSegment, error)
}

func (r *fakeRunner) Run(ctx context.Context, job *jobstore.Job, rep scheduler.Reporter) (jobstore.JobResults, []jobstore.Artifact, []jobstore.TranscriptSegment, error) {
	if r.fn != nil {
		return r.fn(job)
	}
	return jobstore.JobResults{}, nil, nil, nil
}

type testHarness struct {
	h    *Handlers
	db   *jobstore.DB
	done func()
}

func newTestHarness(t *testing.T, runner scheduler.Runner) *testHarness {
	t.Helper()

	db, err := jobstore.Open(context.Background(), filepath.Join(t.TempDir(), "clipcut.db"))
	require.NoError(t, err)

	store, err := blob.New("file://" + t.TempDir())
	require.NoError(t, err)

	bus := eventbus.New(16)

	repo, err := upload.NewMemRepository(t.TempDir())
	require.NoError(t, err)
	assembler := upload.NewAssembler(repo, store, 10*1024*1024, 4*1024*1024, time.Hour, []string{".mp4"})

	if runner == nil {
		runner = &fakeRunner{}
	}
	sched := scheduler.New(db, bus, store, runner, nil, nil, scheduler.Config{
		WorkerConcurrency:       2,
		PerPrincipalConcurrency: 2,
		MaxAttempts:             3,
		RetryBaseSeconds:        0,
		RetryFactor:             2,
		RetryJitter:             0,
		JobDeadline:             5 * time.Second,
		LeaseTTL:                2 * time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sched.Start(ctx))

	h := &Handlers{Assembler: assembler, Scheduler: sched, DB: db, Blobs: store, Bus: bus}

	return &testHarness{h: h, db: db, done: func() {
		sched.Stop()
		cancel()
		db.Close()
	}}
}

// withPrincipal runs handle through the real principal-extraction
// middleware so handlers see middleware.Principal exactly as in production.
func withPrincipal(handle httprouter.Handle) httprouter.Handle {
	return middleware.RequirePrincipal("")(handle)
}

func doRequest(t *testing.T, handle httprouter.Handle, method, target, principal string, body []byte, ps httprouter.Params) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if principal != "" {
		req.Header.Set("X-Principal-Id", principal)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	withPrincipal(handle)(rr, req, ps)
	return rr
}

// writeMultipartChunk builds the chunk_number + chunk multipart body
// UploadChunk expects, returning the Content-Type header value to send.
func writeMultipartChunk(t *testing.T, buf *bytes.Buffer, index int, data []byte) string {
	t.Helper()
	w := multipart.NewWriter(buf)
	require.NoError(t, w.WriteField("chunk_number", strconv.Itoa(index)))
	part, err := w.CreateFormFile("chunk", "chunk.bin")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return w.FormDataContentType()
}

func TestUploadInitThenCompleteRegistersBlob(t *testing.T) {
	hs := newTestHarness(t, nil)
	defer hs.done()

	initBody, err := json.Marshal(uploadInitRequest{Filename: "clip.mp4", Size: 4, ContentType: "video/mp4"})
	require.NoError(t, err)
	rr := doRequest(t, hs.h.UploadInit(), http.MethodPost, "/upload/init", "p1", initBody, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var initResp uploadInitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &initResp))
	require.NotEmpty(t, initResp.UploadID)
	require.Equal(t, 1, initResp.TotalChunks)

	var multipartBody bytes.Buffer
	contentType := writeMultipartChunk(t, &multipartBody, 0, []byte("abcd"))
	req := httptest.NewRequest(http.MethodPost, "/upload/chunk/"+initResp.UploadID, &multipartBody)
	req.Header.Set("X-Principal-Id", "p1")
	req.Header.Set("X-Chunk-Length", "4")
	req.Header.Set("Content-Type", contentType)

	rr2 := httptest.NewRecorder()
	withPrincipal(hs.h.UploadChunk())(rr2, req, httprouter.Params{{Key: "id", Value: initResp.UploadID}})
	require.Equal(t, http.StatusNoContent, rr2.Code)

	rr3 := doRequest(t, hs.h.UploadComplete(), http.MethodPost, "/upload/complete/"+initResp.UploadID, "p1", nil, httprouter.Params{{Key: "id", Value: initResp.UploadID}})
	require.Equal(t, http.StatusOK, rr3.Code)

	var completeResp uploadCompleteResponse
	require.NoError(t, json.Unmarshal(rr3.Body.Bytes(), &completeResp))
	require.NotEmpty(t, completeResp.BlobID)

	exists, err := hs.h.Blobs.Exists(context.Background(), completeResp.BlobID)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestSubmitJobRejectsUnknownBlob(t *testing.T) {
	hs := newTestHarness(t, nil)
	defer hs.done()

	body, err := json.Marshal(submitJobRequest{BlobID: "does-not-exist"})
	require.NoError(t, err)
	rr := doRequest(t, hs.h.SubmitJob(), http.MethodPost, "/jobs", "p1", body, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSubmitJobGetAndCancelRoundTrip(t *testing.T) {
	hs := newTestHarness(t, &fakeRunner{fn: func(job *jobstore.Job) (jobstore.JobResults, []jobstore.Artifact, []jobstore.TranscriptSegment, error) {
		time.Sleep(50 * time.Millisecond)
		return jobstore.JobResults{TotalClips: 1}, nil, nil, nil
	}})
	defer hs.done()

	desc, err := hs.h.Blobs.Put(context.Background(), bytes.NewReader([]byte("source video bytes")))
	require.NoError(t, err)
	require.NoError(t, hs.db.RegisterBlob(context.Background(), desc.ID, desc.Size, desc.ContentType))

	body, err := json.Marshal(submitJobRequest{BlobID: desc.ID})
	require.NoError(t, err)
	rr := doRequest(t, hs.h.SubmitJob(), http.MethodPost, "/jobs", "p1", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var submitResp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitResp))
	jobID := submitResp["id"]
	require.NotEmpty(t, jobID)

	rr2 := doRequest(t, hs.h.GetJob(), http.MethodGet, "/jobs/"+jobID, "p1", nil, httprouter.Params{{Key: "id", Value: jobID}})
	require.Equal(t, http.StatusOK, rr2.Code)

	rr3 := doRequest(t, hs.h.GetJob(), http.MethodGet, "/jobs/"+jobID, "someone-else", nil, httprouter.Params{{Key: "id", Value: jobID}})
	require.Equal(t, http.StatusForbidden, rr3.Code)

	rr4 := doRequest(t, hs.h.ListJobs(), http.MethodGet, "/jobs", "p1", nil, nil)
	require.Equal(t, http.StatusOK, rr4.Code)
	var listResp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr4.Body.Bytes(), &listResp))
	require.EqualValues(t, 1, listResp["total"])

	rr5 := doRequest(t, hs.h.CancelJob(), http.MethodPost, "/jobs/"+jobID+"/cancel", "p1", nil, httprouter.Params{{Key: "id", Value: jobID}})
	require.Equal(t, http.StatusNoContent, rr5.Code)
}

func TestGetJobReturns404ForUnknownID(t *testing.T) {
	hs := newTestHarness(t, nil)
	defer hs.done()

	rr := doRequest(t, hs.h.GetJob(), http.MethodGet, "/jobs/nope", "p1", nil, httprouter.Params{{Key: "id", Value: "nope"}})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

// TestArtifactDownloadFallsBackToLocalRouteWhenPresignUnsupported covers the
// local-file blob driver, whose Presign always returns ErrNotSupported: the
// job DTO's clip_url must point at this process's own download route, and
// that route must actually serve the clip's bytes.
func TestArtifactDownloadFallsBackToLocalRouteWhenPresignUnsupported(t *testing.T) {
	clipBytes := []byte("finished clip bytes")
	var harness *testHarness

	harness = newTestHarness(t, &fakeRunner{fn: func(job *jobstore.Job) (jobstore.JobResults, []jobstore.Artifact, []jobstore.TranscriptSegment, error) {
		desc, err := harness.h.Blobs.Put(context.Background(), bytes.NewReader(clipBytes))
		require.NoError(t, err)
		require.NoError(t, harness.db.RegisterBlob(context.Background(), desc.ID, desc.Size, desc.ContentType))
		return jobstore.JobResults{TotalClips: 1}, []jobstore.Artifact{{Ordinal: 1, BlobID: desc.ID, Duration: 5}}, nil, nil
	}})
	defer harness.done()

	desc, err := harness.h.Blobs.Put(context.Background(), bytes.NewReader([]byte("source video bytes")))
	require.NoError(t, err)
	require.NoError(t, harness.db.RegisterBlob(context.Background(), desc.ID, desc.Size, desc.ContentType))

	body, err := json.Marshal(submitJobRequest{BlobID: desc.ID})
	require.NoError(t, err)
	rr := doRequest(t, harness.h.SubmitJob(), http.MethodPost, "/jobs", "p1", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var submitResp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitResp))
	jobID := submitResp["id"]

	var dto jobDTO
	require.Eventually(t, func() bool {
		rr := doRequest(t, harness.h.GetJob(), http.MethodGet, "/jobs/"+jobID, "p1", nil, httprouter.Params{{Key: "id", Value: jobID}})
		_ = json.Unmarshal(rr.Body.Bytes(), &dto)
		return dto.Status == string(jobstore.StatusCompleted) && len(dto.Artifacts) == 1
	}, 3*time.Second, 20*time.Millisecond)

	artifact := dto.Artifacts[0]
	require.Equal(t, "/jobs/"+jobID+"/artifacts/"+artifact.ID+"/download", artifact.ClipURL)

	rr2 := doRequest(t, harness.h.DownloadArtifact(false), http.MethodGet, artifact.ClipURL, "p1", nil,
		httprouter.Params{{Key: "id", Value: jobID}, {Key: "artifactId", Value: artifact.ID}})
	require.Equal(t, http.StatusOK, rr2.Code)
	require.Equal(t, clipBytes, rr2.Body.Bytes())
}
