package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "requestportal/internal/errors"
	"requestportal/internal/model"
	"requestportal/internal/notify"
	"requestportal/internal/repository"
)

// AttachmentInput is metadata for a previously uploaded file.
type AttachmentInput struct {
	FileName   string
	FilePath   string
	FileType   string
	FileSize   int64
	UploadedAt *time.Time
}

// CreateRequestInput carries a new request submission.
type CreateRequestInput struct {
	Subject     string
	Description string
	Attachments []AttachmentInput
}

// TransitionInput carries an admin review action. Either field may be nil.
type TransitionInput struct {
	Status *string
	Remark *string
}

// StatusNotifier accepts status changes for out-of-band delivery.
type StatusNotifier interface {
	Enqueue(change notify.StatusChange)
}

// RequestService handles the request lifecycle.
type RequestService interface {
	Create(ctx context.Context, actor model.Actor, in CreateRequestInput) (*model.Request, error)
	ListMine(ctx context.Context, actor model.Actor) ([]model.Request, error)
	ListAll(ctx context.Context, actor model.Actor) ([]model.Request, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.Request, error)
	Transition(ctx context.Context, actor model.Actor, id string, in TransitionInput) (*model.Request, error)
}

type requestService struct {
	requestRepo repository.RequestRepository
	notifier    StatusNotifier
	log         *zap.Logger
	now         func() time.Time
}

// RequestOption configures the request service.
type RequestOption func(*requestService)

// WithRequestClock overrides the clock used to stamp remarks and admin actions.
func WithRequestClock(now func() time.Time) RequestOption {
	return func(s *requestService) {
		s.now = now
	}
}

// NewRequestService creates a new request service.
func NewRequestService(requestRepo repository.RequestRepository, notifier StatusNotifier, log *zap.Logger, opts ...RequestOption) RequestService {
	s := &requestService{
		requestRepo: requestRepo,
		notifier:    notifier,
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a request owned by actor with the next REQ id.
func (s *requestService) Create(ctx context.Context, actor model.Actor, in CreateRequestInput) (*model.Request, error) {
	if !actor.Can(model.PermSubmitRequest) {
		return nil, apperrors.ErrForbidden
	}
	subject := model.Subject(strings.TrimSpace(in.Subject))
	if !subject.Valid() {
		return nil, apperrors.ErrInvalidSubject
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, apperrors.NewValidationError("Please provide a description")
	}

	now := s.now()
	attachments := make([]model.Attachment, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		if strings.TrimSpace(a.FileName) == "" || strings.TrimSpace(a.FilePath) == "" {
			return nil, apperrors.NewValidationError("Attachments need a file name and path")
		}
		uploadedAt := now
		if a.UploadedAt != nil {
			uploadedAt = *a.UploadedAt
		}
		attachments = append(attachments, model.Attachment{
			FileName:   a.FileName,
			FilePath:   a.FilePath,
			FileType:   a.FileType,
			FileSize:   a.FileSize,
			UploadedAt: uploadedAt,
		})
	}

	req := &model.Request{
		UserID:      actor.ID,
		Subject:     subject,
		Description: description,
		Status:      model.StatusPending,
		Attachments: attachments,
		CreatedAt:   now,
	}
	if err := s.requestRepo.CreateWithSequence(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.log.Info("request created",
		zap.String("request_id", req.RequestID),
		zap.String("user_id", actor.ID.String()),
		zap.String("subject", string(subject)),
	)
	return req, nil
}

// ListMine returns the actor's own requests, newest first.
func (s *requestService) ListMine(ctx context.Context, actor model.Actor) ([]model.Request, error) {
	if !actor.Can(model.PermViewOwnRequests) {
		return nil, apperrors.ErrForbidden
	}
	requests, err := s.requestRepo.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// ListAll returns every request, newest first.
func (s *requestService) ListAll(ctx context.Context, actor model.Actor) ([]model.Request, error) {
	if !actor.Can(model.PermViewAllRequests) {
		return nil, apperrors.ErrForbidden
	}
	requests, err := s.requestRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// Get returns one request to its owner or to a reviewer.
func (s *requestService) Get(ctx context.Context, actor model.Actor, id string) (*model.Request, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != actor.ID && !actor.Can(model.PermViewAllRequests) {
		return nil, apperrors.ErrForbidden
	}
	return req, nil
}

// Transition appends a remark and/or overwrites the status. No terminal state
// is enforced. A status change is announced to the owner after commit; delivery
// is never part of the outcome.
func (s *requestService) Transition(ctx context.Context, actor model.Actor, id string, in TransitionInput) (*model.Request, error) {
	if !actor.Can(model.PermReviewRequests) {
		return nil, apperrors.ErrForbidden
	}

	var remark string
	if in.Remark != nil && *in.Remark != "" {
		remark = strings.TrimSpace(*in.Remark)
		if remark == "" {
			return nil, apperrors.ErrBlankRemark
		}
	}
	var status model.RequestStatus
	if in.Status != nil {
		status = model.RequestStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if status != "" && !status.Valid() {
			return nil, apperrors.ErrInvalidStatus
		}
	}
	if remark == "" && status == "" {
		return nil, apperrors.ErrNothingToUpdate
	}

	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.requestRepo.WithTransaction(ctx, func(ctx context.Context, repo repository.RequestRepository) error {
		if remark != "" {
			if err := repo.AppendRemark(ctx, &model.Remark{
				RequestID: req.ID,
				Remark:    remark,
				CreatedBy: actor.ID,
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("append remark: %w", err)
			}
		}
		if status != "" {
			if err := repo.UpdateStatus(ctx, req.ID, status, actor.ID, now); err != nil {
				return fmt.Errorf("update status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.requestRepo.FindByID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("reload request: %w", err)
	}

	s.log.Info("request reviewed",
		zap.String("request_id", updated.RequestID),
		zap.String("admin_id", actor.ID.String()),
		zap.String("status", string(updated.Status)),
		zap.Bool("remark", remark != ""),
	)

	if status != "" {
		s.notifyOwner(updated, remark, now)
	}
	return updated, nil
}

func (s *requestService) notifyOwner(req *model.Request, remark string, at time.Time) {
	if s.notifier == nil {
		return
	}
	if req.User == nil {
		s.log.Warn("request owner missing, skipping notification", zap.String("request_id", req.RequestID))
		return
	}
	s.notifier.Enqueue(notify.StatusChange{
		RequestID:   req.RequestID,
		Subject:     string(req.Subject),
		Description: req.Description,
		Status:      string(req.Status),
		Remark:      remark,
		OwnerName:   req.User.Name,
		OwnerEmail:  req.User.Email,
		CreatedAt:   req.CreatedAt,
		ActionAt:    at,
	})
}

// find resolves either a UUID or a human-readable REQ id.
func (s *requestService) find(ctx context.Context, id string) (*model.Request, error) {
	id = strings.TrimSpace(id)
	var (
		req *model.Request
		err error
	)
	if strings.HasPrefix(strings.ToUpper(id), "REQ-") {
		req, err = s.requestRepo.FindByRequestID(ctx, strings.ToUpper(id))
	} else {
		parsed, parseErr := uuid.Parse(id)
		if parseErr != nil {
			return nil, apperrors.ErrRequestNotFound
		}
		req, err = s.requestRepo.FindByID(ctx, parsed)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	return req, nil
}
