package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "requestportal/internal/errors"
	"requestportal/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*MemoryPendingStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemoryPendingStore(WithPendingClock(clock.Now)), clock
}

func sampleRegistration() PendingRegistration {
	return PendingRegistration{
		Name:         "Asha Rao",
		PasswordHash: "$2a$04$hash",
		Role:         model.RoleStudent,
		School:       "School of Technology",
		Phone:        "+919876543210",
	}
}

func TestMemoryPendingStore_PutNormalizesAndSetsExpiry(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	entry, err := store.Put(ctx, " Asha@Woxsen.edu.in ", sampleRegistration(), " 123456 ")
	require.NoError(t, err)

	assert.Equal(t, "asha@woxsen.edu.in", entry.Email)
	assert.Equal(t, "123456", entry.Code)
	assert.Equal(t, clock.Now().Add(PendingRegistrationExpiry), entry.ExpiresAt)

	got, err := store.Get(ctx, "ASHA@woxsen.edu.in")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.Name)
}

func TestMemoryPendingStore_PutOverwrites(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_, err := store.Put(ctx, "asha@woxsen.edu.in", sampleRegistration(), "111111")
	require.NoError(t, err)
	_, err = store.Put(ctx, "asha@woxsen.edu.in", sampleRegistration(), "222222")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
	_, err = store.Consume(ctx, "asha@woxsen.edu.in", "111111")
	assert.ErrorIs(t, err, apperrors.ErrCodeMismatch)
	_, err = store.Consume(ctx, "asha@woxsen.edu.in", "222222")
	assert.NoError(t, err)
}

func TestMemoryPendingStore_Consume(t *testing.T) {
	tests := []struct {
		name     string
		advance  time.Duration
		code     string
		wantErr  error
		wantKept bool
	}{
		{"correct code", 0, "123456", nil, false},
		{"correct code with whitespace", 0, " 123456 ", nil, false},
		{"wrong code keeps entry", 0, "654321", apperrors.ErrCodeMismatch, true},
		{"expired removes entry", PendingRegistrationExpiry + time.Second, "123456", apperrors.ErrCodeExpired, false},
		{"at expiry boundary still valid", PendingRegistrationExpiry, "123456", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, clock := newTestStore()
			ctx := context.Background()
			_, err := store.Put(ctx, "asha@woxsen.edu.in", sampleRegistration(), "123456")
			require.NoError(t, err)

			clock.Advance(tt.advance)
			entry, err := store.Consume(ctx, "asha@woxsen.edu.in", tt.code)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, entry)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "Asha Rao", entry.Name)
			}
			assert.Equal(t, tt.wantKept, store.Len() == 1)
		})
	}
}

func TestMemoryPendingStore_ConsumeMissing(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.Consume(context.Background(), "nobody@woxsen.edu.in", "123456")
	assert.ErrorIs(t, err, apperrors.ErrPendingNotFound)
}

func TestMemoryPendingStore_ConsumeIsSingleUse(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	_, err := store.Put(ctx, "asha@woxsen.edu.in", sampleRegistration(), "123456")
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "asha@woxsen.edu.in", "123456"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryPendingStore_GetExpiredIsRemoved(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	_, err := store.Put(ctx, "asha@woxsen.edu.in", sampleRegistration(), "123456")
	require.NoError(t, err)

	clock.Advance(PendingRegistrationExpiry + time.Second)
	_, err = store.Get(ctx, "asha@woxsen.edu.in")
	assert.ErrorIs(t, err, apperrors.ErrPendingNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryPendingStore_Sweep(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	_, err := store.Put(ctx, "old@woxsen.edu.in", sampleRegistration(), "123456")
	require.NoError(t, err)
	clock.Advance(6 * time.Minute)
	_, err = store.Put(ctx, "new@woxsen.edu.in", sampleRegistration(), "123456")
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "new@woxsen.edu.in")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "old@woxsen.edu.in")
	assert.ErrorIs(t, err, apperrors.ErrPendingNotFound)
}

func TestMemoryPendingStore_Delete(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	_, err := store.Put(ctx, "asha@woxsen.edu.in", sampleRegistration(), "123456")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "Asha@woxsen.edu.in"))
	assert.Equal(t, 0, store.Len())
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	store, clock := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := store.Put(ctx, "asha@woxsen.edu.in", sampleRegistration(), "123456")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, store, 5*time.Millisecond, zap.NewNop())
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
