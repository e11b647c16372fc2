package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"barbeintiaden/photo-archive/internal/service"
	"barbeintiaden/photo-archive/internal/validation"

	"github.com/gin-gonic/gin"
)

const defaultMaxUploadMemory = 32 << 20

// PhotoHandler serves the gallery and the upload form.
type PhotoHandler struct {
	photoService    service.PhotoService
	maxUploadMemory int64
}

// NewPhotoHandler creates a new PhotoHandler. Multipart parts beyond
// maxUploadMemory are buffered on disk.
func NewPhotoHandler(photoService service.PhotoService, maxUploadMemory int64) *PhotoHandler {
	if maxUploadMemory <= 0 {
		maxUploadMemory = defaultMaxUploadMemory
	}
	return &PhotoHandler{photoService: photoService, maxUploadMemory: maxUploadMemory}
}

// Upload handles POST /api/v1/photos. The form carries one or more "file"
// parts plus year, title and description shared by all files. A single file
// answers 201 with the photo; several answer 200 with a tally.
func (h *PhotoHandler) Upload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(h.maxUploadMemory); err != nil {
		abortWithError(c, http.StatusBadRequest, "Expected a multipart form")
		return
	}
	defer c.Request.MultipartForm.RemoveAll()

	headers := c.Request.MultipartForm.File["file"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadFile(fh))
	}
	title, description, year := c.PostForm("title"), c.PostForm("description"), c.PostForm("year")
	caller := currentUser(c)

	if len(files) == 1 {
		photo, err := h.photoService.UploadPhoto(c.Request.Context(), caller, service.UploadRequest{
			Title:       title,
			Description: description,
			Year:        year,
			File:        files[0],
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, photo)
		return
	}

	res, err := h.photoService.UploadPhotos(c.Request.Context(), caller, title, description, year, files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func uploadFile(fh *multipart.FileHeader) service.UploadFile {
	return service.UploadFile{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// List handles GET /api/v1/photos with an optional year filter.
func (h *PhotoHandler) List(c *gin.Context) {
	var year *int
	if raw, ok := c.GetQuery("year"); ok {
		y, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, &validation.Error{Fields: map[string]string{"year": "year must be an integer"}})
			return
		}
		year = &y
	}

	photos, err := h.photoService.ListPhotos(c.Request.Context(), currentUser(c), year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, photos)
}

// Years handles GET /api/v1/years.
func (h *PhotoHandler) Years(c *gin.Context) {
	years, err := h.photoService.ListYears(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, years)
}

// Get handles GET /api/v1/photos/:id.
func (h *PhotoHandler) Get(c *gin.Context) {
	detail, err := h.photoService.GetPhoto(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Delete handles DELETE /api/v1/photos/:id.
func (h *PhotoHandler) Delete(c *gin.Context) {
	if err := h.photoService.DeletePhoto(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
