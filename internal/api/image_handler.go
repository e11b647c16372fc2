package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"barbeintiaden/photo-archive/internal/storage"

	"github.com/gin-gonic/gin"
)

// BlobReader loads stored photo bytes.
type BlobReader interface {
	Read(ctx context.Context, ref string) ([]byte, string, error)
}

// ImageHandler streams blobs that have no public link.
type ImageHandler struct {
	blobs BlobReader
}

func NewImageHandler(blobs BlobReader) *ImageHandler {
	return &ImageHandler{blobs: blobs}
}

// Serve handles GET /api/photos/:ref. Blob names embed a timestamp and are
// never rewritten, so responses are cacheable forever.
func (h *ImageHandler) Serve(c *gin.Context) {
	ref := storage.DecodeRef(rawRef(c))

	data, contentType, err := h.blobs.Read(c.Request.Context(), ref)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to load image", "ref", ref, "error", err)
		abortWithError(c, http.StatusInternalServerError, "Failed to load image")
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, contentType, data)
}

// rawRef returns the ref segment before unescaping, so that an escaped "+"
// inside a folder name stays distinct from the "+" separators.
func rawRef(c *gin.Context) string {
	if escaped := c.Request.URL.EscapedPath(); strings.HasPrefix(escaped, storage.ProxyPrefix) {
		return strings.TrimPrefix(escaped, storage.ProxyPrefix)
	}
	return c.Param("ref")
}
