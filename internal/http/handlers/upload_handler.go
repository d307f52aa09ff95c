package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/storage"
)

// FileStore — хранилище вложений.
type FileStore interface {
	Save(ctx context.Context, purpose storage.Purpose, ownerID uuid.UUID, originalName string, r io.Reader) (*storage.StoredFile, error)
	Open(relativePath string) (*os.File, error)
}

// UploadHandler принимает вложения к заказам. Возвращённый path кладётся
// в requirement_files или files при сдаче работы.
type UploadHandler struct {
	files FileStore
}

func NewUploadHandler(files FileStore) *UploadHandler {
	return &UploadHandler{files: files}
}

// Upload обрабатывает POST /uploads?purpose=delivery|requirements|message.
func (h *UploadHandler) Upload(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	purpose, err := storage.ParsePurpose(c.DefaultQuery("purpose", "delivery"))
	if err != nil {
		response.BadRequest(c, "purpose", "purpose must be one of delivery, requirements, message")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file", "file is required")
		return
	}
	src, err := file.Open()
	if err != nil {
		response.Error(c, err)
		return
	}
	defer src.Close()

	stored, err := h.files.Save(c.Request.Context(), purpose, userID, file.Filename, src)
	if err != nil {
		response.Error(c, uploadError(err, purpose))
		return
	}
	response.Created(c, stored)
}

// Download обрабатывает GET /files/*path.
func (h *UploadHandler) Download(c *gin.Context) {
	if _, ok := common.CurrentUserID(c); !ok {
		return
	}
	rel := strings.TrimPrefix(c.Param("path"), "/")

	f, err := h.files.Open(rel)
	if err != nil {
		response.Error(c, apperror.NotFound("file not found"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+path.Base(rel)+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", f, nil)
}

func uploadError(err error, purpose storage.Purpose) error {
	switch {
	case errors.Is(err, storage.ErrEmptyFile),
		errors.Is(err, storage.ErrFileTooLarge),
		errors.Is(err, storage.ErrTypeMismatch):
		return apperror.ValidationField("file", err.Error())
	case errors.Is(err, storage.ErrUnsupportedType):
		return apperror.ValidationField("file", "unsupported file type, allowed: "+strings.Join(storage.AllowedExtensions(purpose), ", "))
	}
	return err
}
