package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eddykim0118/kivo/internal/http/response"
	"github.com/eddykim0118/kivo/internal/ingest/roles"
	"github.com/eddykim0118/kivo/internal/ingest/validate"
	"github.com/eddykim0118/kivo/internal/platform/logger"
	"github.com/eddykim0118/kivo/internal/services"
)

type UploadHandler struct {
	log      *logger.Logger
	uploads  services.UploadService
	maxBytes int64
}

func NewUploadHandler(log *logger.Logger, uploads services.UploadService, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = validate.DefaultMaxBytes
	}
	return &UploadHandler{log: log.With("handler", "UploadHandler"), uploads: uploads, maxBytes: maxBytes}
}

// POST /api/preview
func (h *UploadHandler) Preview(c *gin.Context) {
	in, err := h.readFile(c)
	if err != nil {
		h.respondReadError(c, err)
		return
	}
	out, err := h.uploads.Preview(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/upload
func (h *UploadHandler) Upload(c *gin.Context) {
	in, err := h.readFile(c)
	if err != nil {
		h.respondReadError(c, err)
		return
	}
	locationID, err := uuid.Parse(strings.TrimSpace(c.PostForm("location_id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("location_id: %w", err))
		return
	}
	file, err := h.uploads.Upload(c.Request.Context(), services.UploadInput{
		File: in,
		Roles: roles.RoleMap{
			Date:   strings.TrimSpace(c.PostForm("date_col")),
			Group:  strings.TrimSpace(c.PostForm("menu_col")),
			Target: strings.TrimSpace(c.PostForm("target_col")),
		},
		LocationID: locationID,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"file": file})
}

// GET /api/files
func (h *UploadHandler) ListFiles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	files, err := h.uploads.ListFiles(c.Request.Context(), limit, offset)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"files": files})
}

// GET /api/files/:id
func (h *UploadHandler) GetFile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	file, err := h.uploads.GetFile(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"file": file})
}

// GET /api/locations
func (h *UploadHandler) ListLocations(c *gin.Context) {
	locations, err := h.uploads.ListLocations(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"locations": locations})
}

var errMissingFile = errors.New("multipart field \"file\" is required")

func (h *UploadHandler) readFile(c *gin.Context) (services.FileInput, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return services.FileInput{}, fmt.Errorf("%w: request exceeds %d bytes", validate.ErrFileTooLarge, tooLarge.Limit)
		}
		if errors.Is(err, http.ErrMissingFile) {
			return services.FileInput{}, errMissingFile
		}
		return services.FileInput{}, err
	}
	if fh.Size > h.maxBytes {
		return services.FileInput{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", validate.ErrFileTooLarge, fh.Size, h.maxBytes)
	}
	data, err := readAll(fh, h.maxBytes)
	if err != nil {
		return services.FileInput{}, err
	}
	return services.FileInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

func (h *UploadHandler) respondReadError(c *gin.Context, err error) {
	if errors.Is(err, validate.ErrFileTooLarge) {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
}

func readAll(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds limit of %d", validate.ErrFileTooLarge, limit)
	}
	return data, nil
}
