package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"yuanyue-cms/internal/storage"

	"github.com/go-chi/chi/v5"
)

// BlobOpener is implemented by blob stores that can stream objects back.
type BlobOpener interface {
	Open(ctx context.Context, name string) (*storage.Object, error)
}

// UploadHandler serves uploaded images out of a local blob store.
type UploadHandler struct {
	blobs BlobOpener
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(blobs BlobOpener) *UploadHandler {
	return &UploadHandler{blobs: blobs}
}

func (h *UploadHandler) serveHandler(w http.ResponseWriter, r *http.Request) {
	obj, err := h.blobs.Open(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Failed to read upload", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	// Names are unique and never overwritten.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, obj)
}
