package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"requestportal/internal/db"
	"requestportal/internal/model"
	"requestportal/internal/notify"
)

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) SetEmailOTP(ctx context.Context, id uuid.UUID, codeHash string, expiresAt time.Time) error {
	args := m.Called(ctx, id, codeHash, expiresAt)
	return args.Error(0)
}

func (m *MockUserRepository) ConsumeEmailOTP(ctx context.Context, id uuid.UUID, codeHash string) (bool, error) {
	args := m.Called(ctx, id, codeHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, id, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *MockUserRepository) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	args := m.Called(ctx, tokenHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) ResetPassword(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string) (bool, error) {
	args := m.Called(ctx, id, tokenHash, passwordHash)
	return args.Bool(0), args.Error(1)
}

type sentCode struct {
	To   string
	Code string
}

type sentReset struct {
	To  string
	URL string
}

// captureNotifier records emails instead of sending them.
type captureNotifier struct {
	mu       sync.Mutex
	err      error
	codes    []sentCode
	resets   []sentReset
	statuses []notify.StatusChange
}

func (n *captureNotifier) SendVerificationCode(_ context.Context, to, _ string, code string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.codes = append(n.codes, sentCode{To: to, Code: code})
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, to, _ string, url string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resets = append(n.resets, sentReset{To: to, URL: url})
	return nil
}

func (n *captureNotifier) SendStatusChange(_ context.Context, change notify.StatusChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.statuses = append(n.statuses, change)
	return nil
}

func (n *captureNotifier) lastCode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.codes) == 0 {
		return ""
	}
	return n.codes[len(n.codes)-1].Code
}

// captureQueue records enqueued status changes.
type captureQueue struct {
	mu      sync.Mutex
	changes []notify.StatusChange
}

func (q *captureQueue) Enqueue(change notify.StatusChange) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.changes = append(q.changes, change)
}

func (q *captureQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB, false, zap.NewNop()))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormDB
}
