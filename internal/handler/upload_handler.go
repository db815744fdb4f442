package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"requestportal/internal/errors"
	"requestportal/internal/service"
)

// UploadFormField is the multipart field carrying the file.
const UploadFormField = "file"

// UploadHandler handles attachment uploads.
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// UploadResponse describes a stored file.
type UploadResponse struct {
	Success bool `json:"success"`
	service.UploadedFile
}

// Upload godoc
// @Summary Upload an attachment
// @Description Accepts pdf, office documents, text, csv, images and zip up to 5 MiB.
// @Tags upload
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /upload [post]
func (h *UploadHandler) Upload(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return domainError(err)
	}

	header, err := c.FormFile(UploadFormField)
	if err != nil {
		return domainError(errors.ErrFileRequired)
	}
	src, err := header.Open()
	if err != nil {
		return domainError(errors.ErrFileRequired)
	}
	defer src.Close()

	file, err := h.uploadService.Upload(c.Request().Context(), actor, header.Filename, header.Size, src)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, UploadResponse{Success: true, UploadedFile: *file})
}
