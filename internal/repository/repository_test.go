package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"requestportal/internal/db"
	"requestportal/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB, false, zap.NewNop()))
	return gormDB
}

func createUser(t *testing.T, repo UserRepository, email string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{Name: email, Email: email, PasswordHash: "hash", Role: role}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestFormatRequestID(t *testing.T) {
	assert.Equal(t, "REQ-001", FormatRequestID(1))
	assert.Equal(t, "REQ-042", FormatRequestID(42))
	assert.Equal(t, "REQ-1000", FormatRequestID(1000))
}

func TestUserRepository_EmailOTP(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	user := createUser(t, repo, "a@woxsen.edu.in", model.RoleStudent)

	require.NoError(t, repo.SetEmailOTP(ctx, user.ID, "hash-1", time.Now().Add(time.Minute)))

	ok, err := repo.ConsumeEmailOTP(ctx, user.ID, "hash-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ConsumeEmailOTP(ctx, user.ID, "hash-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ConsumeEmailOTP(ctx, user.ID, "hash-1")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
	assert.Empty(t, stored.EmailVerificationOTP)
	assert.Nil(t, stored.EmailVerificationOTPExpire)
}

func TestUserRepository_ResetToken(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	user := createUser(t, repo, "b@woxsen.edu.in", model.RoleFaculty)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SetResetToken(ctx, user.ID, "token-hash", now.Add(10*time.Minute)))

	found, err := repo.FindByResetToken(ctx, "token-hash", now)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.FindByResetToken(ctx, "token-hash", now.Add(11*time.Minute))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	ok, err := repo.ResetPassword(ctx, user.ID, "token-hash", "new-hash")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ResetPassword(ctx, user.ID, "token-hash", "other-hash")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)
	assert.Empty(t, stored.ResetPasswordToken)
}

func TestUserRepository_ClearResetToken(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	user := createUser(t, repo, "c@woxsen.edu.in", model.RoleStudent)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SetResetToken(ctx, user.ID, "token-hash", now.Add(time.Hour)))
	require.NoError(t, repo.ClearResetToken(ctx, user.ID))

	_, err := repo.FindByResetToken(ctx, "token-hash", now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	createUser(t, repo, "dup@woxsen.edu.in", model.RoleStudent)

	err := repo.Create(context.Background(), &model.User{Name: "x", Email: "dup@woxsen.edu.in", PasswordHash: "h", Role: model.RoleStudent})
	assert.Error(t, err)
}

func TestRequestRepository_SequenceAndRelations(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	users := NewUserRepository(gormDB)
	repo := NewRequestRepository(gormDB)
	require.NoError(t, repo.EnsureCounter(ctx))

	owner := createUser(t, users, "owner@woxsen.edu.in", model.RoleStudent)
	admin := createUser(t, users, "admin@woxsen.edu.in", model.RoleAdmin)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	var created []*model.Request
	for i := 0; i < 3; i++ {
		req := &model.Request{
			UserID:      owner.ID,
			Subject:     model.SubjectOther,
			Description: "d",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			Attachments: []model.Attachment{{FileName: "f.pdf", FilePath: "/uploads/f.pdf", UploadedAt: base}},
		}
		require.NoError(t, repo.CreateWithSequence(ctx, req))
		created = append(created, req)
	}
	assert.Equal(t, "REQ-001", created[0].RequestID)
	assert.Equal(t, "REQ-003", created[2].RequestID)

	err := repo.WithTransaction(ctx, func(ctx context.Context, tx RequestRepository) error {
		if err := tx.AppendRemark(ctx, &model.Remark{RequestID: created[0].ID, Remark: "one", CreatedBy: admin.ID, CreatedAt: base}); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, created[0].ID, model.StatusApproved, admin.ID, base.Add(time.Hour))
	})
	require.NoError(t, err)

	got, err := repo.FindByRequestID(ctx, "REQ-001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	require.NotNil(t, got.AdminActionBy)
	assert.Equal(t, admin.ID, *got.AdminActionBy)
	require.Len(t, got.Attachments, 1)
	require.Len(t, got.RemarksHistory, 1)
	require.NotNil(t, got.RemarksHistory[0].Author)
	assert.Equal(t, admin.Name, got.RemarksHistory[0].Author.Name)
	assert.Empty(t, got.RemarksHistory[0].Author.Email)
	require.NotNil(t, got.Reviewer)
	assert.Equal(t, admin.Name, got.Reviewer.Name)
	assert.Empty(t, got.Reviewer.Phone)
	require.NotNil(t, got.User)
	assert.Equal(t, owner.Email, got.User.Email)

	list, err := repo.ListByUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "REQ-003", list[0].RequestID)
	assert.Equal(t, "REQ-001", list[2].RequestID)

	none, err := repo.ListByUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRequestRepository_WithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	users := NewUserRepository(gormDB)
	repo := NewRequestRepository(gormDB)
	owner := createUser(t, users, "owner@woxsen.edu.in", model.RoleStudent)

	req := &model.Request{UserID: owner.ID, Subject: model.SubjectOther, Description: "d", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateWithSequence(ctx, req))

	err := repo.WithTransaction(ctx, func(ctx context.Context, tx RequestRepository) error {
		if err := tx.AppendRemark(ctx, &model.Remark{RequestID: req.ID, Remark: "lost", CreatedBy: owner.ID, CreatedAt: time.Now()}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RemarksHistory)
}

func TestRequestRepository_EnsureCounterSeedsFromExisting(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	users := NewUserRepository(gormDB)
	owner := createUser(t, users, "owner@woxsen.edu.in", model.RoleStudent)

	// rows written before the counter existed
	legacy := &model.Request{RequestID: "REQ-007", Sequence: 7, UserID: owner.ID, Subject: model.SubjectOther, Description: "old", CreatedAt: time.Now()}
	require.NoError(t, gormDB.Create(legacy).Error)

	repo := NewRequestRepository(gormDB)
	require.NoError(t, repo.EnsureCounter(ctx))
	require.NoError(t, repo.EnsureCounter(ctx))

	next := &model.Request{UserID: owner.ID, Subject: model.SubjectOther, Description: "new", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateWithSequence(ctx, next))
	assert.Equal(t, "REQ-008", next.RequestID)
}
