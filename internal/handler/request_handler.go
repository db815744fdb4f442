package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"requestportal/internal/service"
)

// RequestHandler handles request submission and review endpoints.
type RequestHandler struct {
	requestService service.RequestService
}

// NewRequestHandler creates a new request handler.
func NewRequestHandler(requestService service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// AttachmentPayload references a file returned by the upload endpoint.
type AttachmentPayload struct {
	FileName   string     `json:"fileName" validate:"required,max=255"`
	FilePath   string     `json:"filePath" validate:"required,max=1024"`
	FileType   string     `json:"fileType" validate:"max=255"`
	FileSize   int64      `json:"fileSize" validate:"gte=0"`
	UploadedAt *time.Time `json:"uploadedAt"`
}

// CreateRequestRequest represents a new request submission.
type CreateRequestRequest struct {
	Subject     string              `json:"subject" validate:"required"`
	Description string              `json:"description" validate:"required,max=5000"`
	Attachments []AttachmentPayload `json:"attachments" validate:"max=10,dive"`
}

// UpdateRequestRequest carries an admin review. Either field may be omitted.
type UpdateRequestRequest struct {
	Status *string `json:"status"`
	Remark *string `json:"remark" validate:"omitempty,max=2000"`
}

// Create godoc
// @Summary Submit a request
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequestRequest true "Request data"
// @Success 201 {object} DataResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /requests [post]
func (h *RequestHandler) Create(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return domainError(err)
	}

	var req CreateRequestRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	attachments := make([]service.AttachmentInput, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, service.AttachmentInput{
			FileName:   a.FileName,
			FilePath:   a.FilePath,
			FileType:   a.FileType,
			FileSize:   a.FileSize,
			UploadedAt: a.UploadedAt,
		})
	}

	created, err := h.requestService.Create(c.Request().Context(), actor, service.CreateRequestInput{
		Subject:     req.Subject,
		Description: req.Description,
		Attachments: attachments,
	})
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, DataResponse{Success: true, Data: created})
}

// ListMine godoc
// @Summary List my requests
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DataResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /requests/me [get]
func (h *RequestHandler) ListMine(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return domainError(err)
	}

	requests, err := h.requestService.ListMine(c.Request().Context(), actor)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, DataResponse{Success: true, Data: requests})
}

// ListAll godoc
// @Summary List all requests
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DataResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /requests/all [get]
func (h *RequestHandler) ListAll(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return domainError(err)
	}

	requests, err := h.requestService.ListAll(c.Request().Context(), actor)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, DataResponse{Success: true, Data: requests})
}

// Get godoc
// @Summary Get one request
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request UUID or REQ id"
// @Success 200 {object} DataResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return domainError(err)
	}

	req, err := h.requestService.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, DataResponse{Success: true, Data: req})
}

// Update godoc
// @Summary Review a request
// @Description Sets the status and/or appends a remark. The owner is emailed when the status changes.
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request UUID or REQ id"
// @Param request body UpdateRequestRequest true "Status and remark"
// @Success 200 {object} DataResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /requests/{id} [put]
func (h *RequestHandler) Update(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return domainError(err)
	}

	var req UpdateRequestRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.requestService.Transition(c.Request().Context(), actor, c.Param("id"), service.TransitionInput{
		Status: req.Status,
		Remark: req.Remark,
	})
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, DataResponse{Success: true, Data: updated})
}
