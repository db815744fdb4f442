package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"requestportal/internal/model"
)

// RequestRepository defines request persistence operations.
type RequestRepository interface {
	// CreateWithSequence draws the next counter value and persists req with its
	// human-readable id in a single transaction.
	CreateWithSequence(ctx context.Context, req *model.Request) error
	// EnsureCounter seeds the request counter from existing rows if it is missing.
	EnsureCounter(ctx context.Context) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindByRequestID(ctx context.Context, requestID string) (*model.Request, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Request, error)
	ListAll(ctx context.Context) ([]model.Request, error)
	AppendRemark(ctx context.Context, remark *model.Remark) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus, actor uuid.UUID, at time.Time) error
	// Transaction methods
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo RequestRepository) error) error
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

// FormatRequestID renders a sequence number as a human-readable request id.
func FormatRequestID(n int64) string {
	return fmt.Sprintf("REQ-%03d", n)
}

func (r *requestRepository) CreateWithSequence(ctx context.Context, req *model.Request) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := nextValue(tx, model.RequestCounter)
		if err != nil {
			return err
		}
		req.Sequence = n
		req.RequestID = FormatRequestID(n)
		return tx.Create(req).Error
	})
}

// nextValue increments and returns a named counter. The UPDATE holds the row lock
// until the surrounding transaction ends.
func nextValue(tx *gorm.DB, name string) (int64, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Counter{Name: name}).Error; err != nil {
		return 0, fmt.Errorf("init counter: %w", err)
	}
	if err := tx.Model(&model.Counter{}).
		Where("name = ?", name).
		UpdateColumn("value", gorm.Expr("value + ?", 1)).Error; err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	var counter model.Counter
	if err := tx.Where("name = ?", name).First(&counter).Error; err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return counter.Value, nil
}

func (r *requestRepository) EnsureCounter(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.Counter{}).Where("name = ?", model.RequestCounter).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		var maxSeq int64
		if err := tx.Model(&model.Request{}).Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Counter{Name: model.RequestCounter, Value: maxSeq}).Error
	})
}

// withRelations loads related users with only the columns requests expose.
func (r *requestRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name", "email")
		}).
		Preload("Reviewer", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name")
		}).
		Preload("Attachments").
		Preload("RemarksHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("RemarksHistory.Author", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name")
		})
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := r.withRelations(r.db.WithContext(ctx)).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByRequestID(ctx context.Context, requestID string) (*model.Request, error) {
	var req model.Request
	if err := r.withRelations(r.db.WithContext(ctx)).Where("request_id = ?", requestID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Request, error) {
	var requests []model.Request
	if err := r.withRelations(r.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC, sequence DESC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) ListAll(ctx context.Context) ([]model.Request, error) {
	var requests []model.Request
	if err := r.withRelations(r.db.WithContext(ctx)).
		Order("created_at DESC, sequence DESC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// AppendRemark inserts a remark row. Remarks are never updated or deleted.
func (r *requestRepository) AppendRemark(ctx context.Context, remark *model.Remark) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(remark).Error
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus, actor uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Request{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            status,
			"admin_action_date": at,
			"admin_action_by":   actor,
		}).Error
}

// WithTransaction executes a function within a database transaction.
func (r *requestRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo RequestRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &requestRepository{db: tx}
		return fn(ctx, txRepo)
	})
}
