package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "requestportal/internal/errors"
	"requestportal/internal/model"
	"requestportal/internal/notify"
	"requestportal/internal/repository"
)

type requestFixture struct {
	svc     RequestService
	repo    repository.RequestRepository
	users   repository.UserRepository
	queue   *captureQueue
	clock   *testClock
	student model.Actor
	faculty model.Actor
	admin   model.Actor
}

func newRequestFixture(t *testing.T) *requestFixture {
	t.Helper()
	gormDB := newTestDB(t)
	users := repository.NewUserRepository(gormDB)
	repo := repository.NewRequestRepository(gormDB)
	require.NoError(t, repo.EnsureCounter(context.Background()))

	clock := newTestClock()
	queue := &captureQueue{}
	f := &requestFixture{
		svc:   NewRequestService(repo, queue, zap.NewNop(), WithRequestClock(clock.Now)),
		repo:  repo,
		users: users,
		queue: queue,
		clock: clock,
	}
	f.student = f.createUser(t, "student", model.RoleStudent)
	f.faculty = f.createUser(t, "faculty", model.RoleFaculty)
	f.admin = f.createUser(t, "admin", model.RoleAdmin)
	return f
}

func (f *requestFixture) createUser(t *testing.T, name string, role model.Role) model.Actor {
	t.Helper()
	user := &model.User{
		Name:          name,
		Email:         name + "@" + testDomain,
		PasswordHash:  "x",
		Role:          role,
		EmailVerified: true,
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return model.Actor{ID: user.ID, Role: role}
}

func (f *requestFixture) submit(t *testing.T, actor model.Actor, description string) *model.Request {
	t.Helper()
	req, err := f.svc.Create(context.Background(), actor, CreateRequestInput{
		Subject:     string(model.SubjectAdministrative),
		Description: description,
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return req
}

func strPtr(s string) *string { return &s }

func TestRequestService_Create(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.student, CreateRequestInput{
		Subject:     "course-related",
		Description: "  Need to change my elective  ",
		Attachments: []AttachmentInput{{FileName: "a.pdf", FilePath: "/uploads/a.pdf", FileType: "application/pdf", FileSize: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, "REQ-001", req.RequestID)
	assert.Equal(t, model.StatusPending, req.Status)
	assert.Equal(t, "Need to change my elective", req.Description)
	assert.Equal(t, f.student.ID, req.UserID)
	require.Len(t, req.Attachments, 1)
	assert.Equal(t, f.clock.Now(), req.Attachments[0].UploadedAt)

	second, err := f.svc.Create(ctx, f.faculty, CreateRequestInput{Subject: "other", Description: "Projector"})
	require.NoError(t, err)
	assert.Equal(t, "REQ-002", second.RequestID)
}

func TestRequestService_Create_Validation(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.student, CreateRequestInput{Subject: "gossip", Description: "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSubject)

	_, err = f.svc.Create(ctx, f.student, CreateRequestInput{Subject: "other", Description: "   "})
	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, apperrors.KindValidation, de.Kind)

	_, err = f.svc.Create(ctx, model.Actor{ID: uuid.New(), Role: "guest"}, CreateRequestInput{Subject: "other", Description: "x"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestRequestService_ConcurrentCreateUniqueIDs(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()

	const n = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := f.svc.Create(ctx, f.student, CreateRequestInput{Subject: "other", Description: fmt.Sprintf("request %d", i)})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[req.RequestID] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, n)
	for i := 1; i <= n; i++ {
		assert.True(t, ids[repository.FormatRequestID(int64(i))], "missing %s", repository.FormatRequestID(int64(i)))
	}
}

func TestRequestService_Listing(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()

	first := f.submit(t, f.student, "first")
	f.submit(t, f.faculty, "faculty one")
	third := f.submit(t, f.student, "second")

	mine, err := f.svc.ListMine(ctx, f.student)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.RequestID, mine[0].RequestID)
	assert.Equal(t, first.RequestID, mine[1].RequestID)

	all, err := f.svc.ListAll(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.RequestID, all[0].RequestID)
	require.NotNil(t, all[0].User)
	assert.Equal(t, "student", all[0].User.Name)

	_, err = f.svc.ListAll(ctx, f.student)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestRequestService_ListMine_ReviewerNameOnly(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()

	reviewer := &model.User{
		Name:          "Reviewer",
		Email:         "rev@" + testDomain,
		PasswordHash:  "x",
		Role:          model.RoleAdmin,
		School:        "School of Law",
		Phone:         "+919876543210",
		EmailVerified: true,
	}
	require.NoError(t, f.users.Create(ctx, reviewer))
	req := f.submit(t, f.student, "needs review")

	_, err := f.svc.Transition(ctx, model.Actor{ID: reviewer.ID, Role: reviewer.Role}, req.RequestID, TransitionInput{
		Status: strPtr("rejected"),
		Remark: strPtr("insufficient detail"),
	})
	require.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, f.student)
	require.NoError(t, err)
	raw, err := json.Marshal(mine)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)

	remarks := decoded[0]["remarksHistory"].([]interface{})
	require.Len(t, remarks, 1)
	author := remarks[0].(map[string]interface{})["createdBy"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"id": reviewer.ID.String(), "name": "Reviewer"}, author)

	actionBy := decoded[0]["adminActionBy"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"id": reviewer.ID.String(), "name": "Reviewer"}, actionBy)

	owner := decoded[0]["user"].(map[string]interface{})
	assert.Equal(t, "student@"+testDomain, owner["email"])
	assert.NotContains(t, owner, "phone")
	assert.NotContains(t, owner, "role")

	assert.NotContains(t, string(raw), reviewer.Email)
	assert.NotContains(t, string(raw), reviewer.Phone)
	assert.NotContains(t, string(raw), reviewer.School)
}

func TestRequestService_Get(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	req := f.submit(t, f.student, "mine")

	got, err := f.svc.Get(ctx, f.student, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	got, err = f.svc.Get(ctx, f.admin, req.ID.String())
	require.NoError(t, err)
	assert.Equal(t, req.RequestID, got.RequestID)

	_, err = f.svc.Get(ctx, f.faculty, req.RequestID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.Get(ctx, f.admin, "REQ-999")
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)
	_, err = f.svc.Get(ctx, f.admin, "not-an-id")
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)
}

func TestRequestService_Transition(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	req := f.submit(t, f.student, "please approve")

	updated, err := f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{
		Status: strPtr("approved"),
		Remark: strPtr("Looks fine"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, updated.Status)
	require.NotNil(t, updated.AdminActionDate)
	assert.True(t, f.clock.Now().Equal(*updated.AdminActionDate))
	require.NotNil(t, updated.AdminActionBy)
	assert.Equal(t, f.admin.ID, *updated.AdminActionBy)
	require.Len(t, updated.RemarksHistory, 1)
	assert.Equal(t, "Looks fine", updated.RemarksHistory[0].Remark)
	assert.Equal(t, f.admin.ID, updated.RemarksHistory[0].CreatedBy)

	require.Equal(t, 1, f.queue.count())
	change := f.queue.changes[0]
	assert.Equal(t, req.RequestID, change.RequestID)
	assert.Equal(t, "approved", change.Status)
	assert.Equal(t, "Looks fine", change.Remark)
	assert.Equal(t, "student@"+testDomain, change.OwnerEmail)
}

func TestRequestService_Transition_RemarkOnly(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	req := f.submit(t, f.student, "question")

	_, err := f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{Remark: strPtr("first")})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	updated, err := f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{Remark: strPtr("second")})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, updated.Status)
	assert.Nil(t, updated.AdminActionDate)
	require.Len(t, updated.RemarksHistory, 2)
	assert.Equal(t, "first", updated.RemarksHistory[0].Remark)
	assert.Equal(t, "second", updated.RemarksHistory[1].Remark)
	assert.Equal(t, 0, f.queue.count())
}

func TestRequestService_Transition_NoTerminalState(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	req := f.submit(t, f.student, "flip flop")

	_, err := f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{Status: strPtr("rejected")})
	require.NoError(t, err)
	updated, err := f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{Status: strPtr("pending")})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, updated.Status)
	assert.Equal(t, 2, f.queue.count())
}

func TestRequestService_Transition_Rejections(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	req := f.submit(t, f.student, "x")

	_, err := f.svc.Transition(ctx, f.student, req.RequestID, TransitionInput{Status: strPtr("approved")})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{Status: strPtr("archived")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatus)

	_, err = f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{Remark: strPtr("")})
	assert.ErrorIs(t, err, apperrors.ErrNothingToUpdate)

	_, err = f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{Remark: strPtr("   ")})
	assert.ErrorIs(t, err, apperrors.ErrBlankRemark)

	_, err = f.svc.Transition(ctx, f.admin, req.RequestID, TransitionInput{Status: strPtr("approved"), Remark: strPtr("\t ")})
	assert.ErrorIs(t, err, apperrors.ErrBlankRemark)

	_, err = f.svc.Transition(ctx, f.admin, "REQ-404", TransitionInput{Status: strPtr("approved")})
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)

	got, err := f.svc.Get(ctx, f.admin, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 0, f.queue.count())
}

func TestRequestService_Transition_NotificationFailureDoesNotFail(t *testing.T) {
	gormDB := newTestDB(t)
	users := repository.NewUserRepository(gormDB)
	repo := repository.NewRequestRepository(gormDB)
	ctx := context.Background()

	notifier := &captureNotifier{err: errors.New("smtp down")}
	dispatcher := notify.NewDispatcher(notifier, zap.NewNop(), notify.WithRetry(2, time.Millisecond))
	dispatcher.Start(ctx)

	svc := NewRequestService(repo, dispatcher, zap.NewNop())

	owner := &model.User{Name: "owner", Email: "owner@" + testDomain, PasswordHash: "x", Role: model.RoleStudent}
	admin := &model.User{Name: "admin", Email: "admin@" + testDomain, PasswordHash: "x", Role: model.RoleAdmin}
	require.NoError(t, users.Create(ctx, owner))
	require.NoError(t, users.Create(ctx, admin))

	req, err := svc.Create(ctx, model.Actor{ID: owner.ID, Role: owner.Role}, CreateRequestInput{Subject: "other", Description: "x"})
	require.NoError(t, err)

	updated, err := svc.Transition(ctx, model.Actor{ID: admin.ID, Role: admin.Role}, req.RequestID, TransitionInput{Status: strPtr("rejected")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, updated.Status)

	dispatcher.Close()

	got, err := repo.FindByRequestID(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
}
