// Package api exposes a storage repository over HTTP in the bucket/key model:
// byte-level get/put/delete, head-object metadata, and prefix listing with
// continuation-token pagination.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/DigitalRuby/S3ObjectStore/pkg/objectstore"
)

// ObjectHandler serves repository operations for a single backend
type ObjectHandler struct {
	repo objectstore.Repository
}

// NewObjectHandler creates a handler over repo
func NewObjectHandler(repo objectstore.Repository) *ObjectHandler {
	return &ObjectHandler{repo: repo}
}

// Routes returns the router for object endpoints
func (h *ObjectHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger)

	r.Get("/buckets", h.ListBuckets)
	r.Route("/buckets/{bucket}", func(r chi.Router) {
		r.Get("/objects", h.ListObjects)
		r.Get("/objects/*", h.GetObject)
		r.Head("/objects/*", h.HeadObject)
		r.Put("/objects/*", h.PutObject)
		r.Delete("/objects/*", h.DeleteObject)
	})
	return r
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListObjectsResponse is one page of a listing
type ListObjectsResponse struct {
	Contents    []ObjectEntry `json:"contents"`
	IsTruncated bool          `json:"is_truncated"`
	NextToken   string        `json:"next_token,omitempty"`
}

// ObjectEntry is one object row of a listing response
type ObjectEntry struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// GetObject streams the object body
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	path := chi.URLParam(r, "*")

	info, found, err := h.repo.GetMetadata(r.Context(), bucket, path)
	if err != nil {
		h.backendError(w, r, "get object metadata", err)
		return
	}
	if !found {
		h.notFound(w, r, bucket, path)
		return
	}

	body, found, err := h.repo.Read(r.Context(), bucket, path)
	if err != nil {
		h.backendError(w, r, "read object", err)
		return
	}
	if !found {
		h.notFound(w, r, bucket, path)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("Streaming object body failed", "bucket", bucket, "path", path, "error", err)
	}
}

// HeadObject returns object metadata as response headers
func (h *ObjectHandler) HeadObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	path := chi.URLParam(r, "*")

	info, found, err := h.repo.GetMetadata(r.Context(), bucket, path)
	if err != nil {
		h.backendError(w, r, "get object metadata", err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	if info.ExpiresAt != nil {
		w.Header().Set("Expires", info.ExpiresAt.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
}

// PutObject creates or replaces the object with the request body
func (h *ObjectHandler) PutObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	path := chi.URLParam(r, "*")

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.repo.Upsert(r.Context(), bucket, path, contentType, r.Body); err != nil {
		h.backendError(w, r, "upsert object", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteObject removes the object; deleting an absent object succeeds
func (h *ObjectHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	path := chi.URLParam(r, "*")

	if err := h.repo.Delete(r.Context(), bucket, path); err != nil {
		h.backendError(w, r, "delete object", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListObjects returns one page of objects under an optional prefix
func (h *ObjectHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	opts := objectstore.ListOptions{
		Prefix:            r.URL.Query().Get("prefix"),
		StartAfter:        r.URL.Query().Get("start_after"),
		ContinuationToken: r.URL.Query().Get("token"),
	}
	if raw := r.URL.Query().Get("max_keys"); raw != "" {
		maxKeys, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "max_keys must be an integer"})
			return
		}
		opts.MaxKeys = int32(maxKeys)
	}

	page, err := h.repo.ListContents(r.Context(), bucket, opts)
	if err != nil {
		h.backendError(w, r, "list objects", err)
		return
	}

	resp := ListObjectsResponse{
		Contents:    make([]ObjectEntry, 0, len(page.Contents)),
		IsTruncated: page.IsTruncated,
		NextToken:   page.NextContinuationToken,
	}
	for _, entry := range page.Contents {
		resp.Contents = append(resp.Contents, ObjectEntry{
			Path:         entry.Path,
			Size:         entry.Size,
			LastModified: entry.LastModified,
		})
	}
	render.JSON(w, r, resp)
}

// ListBuckets returns all buckets; 403 when the backend runs in the
// restricted deployment mode
func (h *ObjectHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.repo.ListBuckets(r.Context())
	if err != nil {
		if errors.Is(err, objectstore.ErrBucketAdminNotPermitted) {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, ErrorResponse{Error: err.Error()})
			return
		}
		h.backendError(w, r, "list buckets", err)
		return
	}
	render.JSON(w, r, buckets)
}

func (h *ObjectHandler) notFound(w http.ResponseWriter, r *http.Request, bucket, path string) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, ErrorResponse{Error: "object not found: " + bucket + "/" + path})
}

func (h *ObjectHandler) backendError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error("Storage operation failed", "op", op, "error", err)
	render.Status(r, http.StatusBadGateway)
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}
