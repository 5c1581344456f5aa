package httpapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/middleware"
)

type uploadInitRequest struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	ChunkSize   int64  `json:"chunk_size"`
}

type uploadInitResponse struct {
	UploadID    string `json:"upload_id"`
	ChunkSize   int64  `json:"chunk_size"`
	TotalChunks int    `json:"total_chunks"`
	ExpiresAt   string `json:"expires_at"`
}

// UploadInit handles POST /upload/init.
func (h *Handlers) UploadInit() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		principalID := middleware.Principal(r)

		var req uploadInitRequest
		if err := decodeValidated(r, "UploadInit", &req); err != nil {
			apierrors.WriteHTTP(w, "", err)
			return
		}

		result, err := h.Assembler.Init(r.Context(), principalID, req.Filename, req.Size, req.ContentType, req.ChunkSize)
		if err != nil {
			apierrors.WriteHTTP(w, "", err)
			return
		}

		writeJSON(w, http.StatusCreated, uploadInitResponse{
			UploadID:    result.UploadID,
			ChunkSize:   result.ChunkSize,
			TotalChunks: result.TotalChunks,
			ExpiresAt:   result.ExpiresAt.UTC().Format(rfc3339Millis),
		})
	}
}

// UploadChunk handles POST /upload/chunk/:id, a multipart form carrying the
// chunk_number field and a chunk file part.
func (h *Handlers) UploadChunk() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principalID := middleware.Principal(r)
		uploadID := ps.ByName("id")

		reader, err := r.MultipartReader()
		if err != nil {
			apierrors.WriteHTTP(w, "", apierrors.New(apierrors.KindInvalidParameters, "expected a multipart request"))
			return
		}

		var chunkNumber = -1
		var part *multipart.Part
		for {
			p, perr := reader.NextPart()
			if perr != nil {
				break
			}
			switch p.FormName() {
			case "chunk_number":
				raw, _ := io.ReadAll(p)
				if n, perr := strconv.Atoi(string(raw)); perr == nil {
					chunkNumber = n
				}
			case "chunk":
				part = p
			}
			if chunkNumber >= 0 && part != nil {
				break
			}
		}
		if part == nil || chunkNumber < 0 {
			apierrors.WriteHTTP(w, "", apierrors.New(apierrors.KindInvalidParameters, "multipart body requires chunk_number and chunk fields"))
			return
		}

		length, err := strconv.ParseInt(r.Header.Get("X-Chunk-Length"), 10, 64)
		if err != nil || length <= 0 {
			apierrors.WriteHTTP(w, "", apierrors.New(apierrors.KindInvalidParameters, "X-Chunk-Length header is required"))
			return
		}

		if werr := h.Assembler.WriteChunk(r.Context(), principalID, uploadID, chunkNumber, length, part); werr != nil {
			apierrors.WriteHTTP(w, "", werr)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type uploadCompleteResponse struct {
	BlobID      string `json:"blob_id"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// UploadComplete handles POST /upload/complete/:id. The assembled blob is
// registered into the job store's refcounted blobs table here, since
// Assembler.Complete only promotes bytes into the Blob Store and has no
// jobstore dependency of its own.
func (h *Handlers) UploadComplete() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principalID := middleware.Principal(r)
		uploadID := ps.ByName("id")

		desc, err := h.Assembler.Complete(r.Context(), principalID, uploadID)
		if err != nil {
			apierrors.WriteHTTP(w, "", err)
			return
		}
		if rerr := h.DB.RegisterBlob(r.Context(), desc.ID, desc.Size, desc.ContentType); rerr != nil {
			apierrors.WriteHTTP(w, "", apierrors.Wrap(apierrors.KindInternal, "registering uploaded blob", rerr))
			return
		}

		writeJSON(w, http.StatusOK, uploadCompleteResponse{
			BlobID:      desc.ID,
			Size:        desc.Size,
			ContentType: desc.ContentType,
		})
	}
}

// UploadAbort handles POST /upload/abort/:id.
func (h *Handlers) UploadAbort() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principalID := middleware.Principal(r)
		uploadID := ps.ByName("id")

		if err := h.Assembler.Abort(r.Context(), principalID, uploadID); err != nil {
			apierrors.WriteHTTP(w, "", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
