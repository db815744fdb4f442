package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	apperrors "requestportal/internal/errors"
	"requestportal/internal/model"
	"requestportal/internal/storage"
)

// UploadedFile describes a stored attachment.
type UploadedFile struct {
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	FileType   string    `json:"fileType"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// UploadService validates and stores request attachments.
type UploadService interface {
	Upload(ctx context.Context, actor model.Actor, name string, size int64, r io.Reader) (*UploadedFile, error)
}

type uploadService struct {
	store    storage.Storage
	maxBytes int64
	log      *zap.Logger
	now      func() time.Time
}

// NewUploadService creates a new upload service.
func NewUploadService(store storage.Storage, maxBytes int64, log *zap.Logger) UploadService {
	if maxBytes <= 0 {
		maxBytes = storage.DefaultMaxBytes
	}
	return &uploadService{store: store, maxBytes: maxBytes, log: log, now: time.Now}
}

// Upload reads at most one byte past the ceiling so oversize bodies are
// rejected without buffering them whole.
func (s *uploadService) Upload(ctx context.Context, actor model.Actor, name string, size int64, r io.Reader) (*UploadedFile, error) {
	if !actor.Can(model.PermUploadFiles) {
		return nil, apperrors.ErrForbidden
	}
	if r == nil || name == "" {
		return nil, apperrors.ErrFileRequired
	}
	if size > s.maxBytes {
		return nil, apperrors.ErrFileTooLarge
	}

	content, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(content)) > size {
		size = int64(len(content))
	}

	fileType, err := storage.Validate(name, size, s.maxBytes, content)
	if err != nil {
		return nil, err
	}

	now := s.now()
	stored := storage.StoredName(name, now)
	path, err := s.store.Save(ctx, stored, fileType, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	s.log.Info("file uploaded",
		zap.String("user_id", actor.ID.String()),
		zap.String("file", stored),
		zap.Int64("size", size),
	)
	return &UploadedFile{
		FileName:   stored,
		FilePath:   path,
		FileType:   fileType,
		FileSize:   size,
		UploadedAt: now,
	}, nil
}
