package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voxpage/voxpage/internal/jobstore"
	"github.com/voxpage/voxpage/internal/pipeline"
)

// JobsHandler serves the job submission and retrieval endpoints.
type JobsHandler struct {
	svc       Service
	maxUpload int64
	log       zerolog.Logger
}

func NewJobsHandler(svc Service, maxUploadMB int64, log zerolog.Logger) *JobsHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 64
	}
	return &JobsHandler{
		svc:       svc,
		maxUpload: maxUploadMB << 20,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// Submit accepts a multipart upload with a "document" file part, or a raw
// "text" field for pasted content, plus an optional "summary" boolean field,
// and queues a new job.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	var src io.Reader
	var filename string
	if file, header, err := r.FormFile("document"); err == nil {
		defer file.Close()
		src = file
		filename = header.Filename
	} else if text := r.FormValue("text"); text != "" {
		src = strings.NewReader(text)
		filename = "pasted.txt"
	} else {
		WriteError(w, http.StatusBadRequest, "missing document file part or text field")
		return
	}

	summary, _ := strconv.ParseBool(r.FormValue("summary"))

	job, err := h.svc.Submit(r.Context(), filename, src, pipeline.SubmitOptions{Summary: summary})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrQueueFull):
			WriteError(w, http.StatusServiceUnavailable, "job queue full, retry later")
		default:
			WriteErrorDetail(w, http.StatusBadRequest, "submission rejected", err.Error())
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// List returns jobs newest-first with limit/offset pagination.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := h.svc.ListJobs(r.Context(), p.Limit, p.Offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list jobs failed")
		WriteError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	if jobs == nil {
		jobs = []*jobstore.Job{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// Get returns one job by id.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.log.Error().Err(err).Msg("get job failed")
		WriteError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Artifact streams a produced artifact. 404 for unknown jobs, 409 while the
// artifact is not ready yet.
func (h *JobsHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	kind := jobstore.ArtifactKind(chi.URLParam(r, "kind"))
	switch kind {
	case jobstore.ArtifactVideo, jobstore.ArtifactSummaryText, jobstore.ArtifactSummaryVideo:
	default:
		WriteError(w, http.StatusBadRequest, "unknown artifact kind")
		return
	}

	rc, name, err := h.svc.OpenArtifact(r.Context(), chi.URLParam(r, "id"), kind)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNotFound):
			WriteError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, pipeline.ErrNotReady):
			WriteError(w, http.StatusConflict, "artifact not ready")
		default:
			h.log.Error().Err(err).Msg("open artifact failed")
			WriteError(w, http.StatusInternalServerError, "could not open artifact")
		}
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Debug().Err(err).Msg("artifact stream aborted")
	}
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(name, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	}
	return "application/octet-stream"
}
