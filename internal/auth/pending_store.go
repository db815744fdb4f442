package auth

import (
	"context"
	"sync"
	"time"

	apperrors "requestportal/internal/errors"
	"requestportal/internal/model"
)

// PendingRegistrationExpiry is how long a registration waits for its code.
const PendingRegistrationExpiry = 10 * time.Minute

// PendingRegistration is a submitted but not yet verified registration.
type PendingRegistration struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	Role         model.Role `json:"role"`
	School       string     `json:"school"`
	Phone        string     `json:"phone"`
	Code         string     `json:"code"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// PendingStore keeps unverified registrations keyed by normalized email.
type PendingStore interface {
	// Put stores or overwrites the entry for email with a fresh expiry.
	Put(ctx context.Context, email string, data PendingRegistration, code string) (*PendingRegistration, error)
	// Get returns the live entry for email or ErrPendingNotFound. Expired entries are removed.
	Get(ctx context.Context, email string) (*PendingRegistration, error)
	Delete(ctx context.Context, email string) error
	// Consume atomically checks code against the entry and removes it on success.
	// Expired entries are removed and reported as ErrCodeExpired; a wrong code
	// leaves the entry in place and reports ErrCodeMismatch.
	Consume(ctx context.Context, email, code string) (*PendingRegistration, error)
	// Sweep removes expired entries and reports how many were dropped.
	Sweep(ctx context.Context) (int, error)
}

// PendingStoreOption configures a pending store.
type PendingStoreOption func(*pendingOptions)

type pendingOptions struct {
	ttl time.Duration
	now func() time.Time
}

func defaultPendingOptions(opts []PendingStoreOption) pendingOptions {
	o := pendingOptions{ttl: PendingRegistrationExpiry, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPendingTTL overrides the registration expiry.
func WithPendingTTL(ttl time.Duration) PendingStoreOption {
	return func(o *pendingOptions) {
		o.ttl = ttl
	}
}

// WithPendingClock overrides the clock used for expiry decisions.
func WithPendingClock(now func() time.Time) PendingStoreOption {
	return func(o *pendingOptions) {
		o.now = now
	}
}

// MemoryPendingStore is a process-local PendingStore. All operations hold a single mutex.
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]PendingRegistration
	opts    pendingOptions
}

// Ensure MemoryPendingStore implements PendingStore
var _ PendingStore = (*MemoryPendingStore)(nil)

// NewMemoryPendingStore creates an empty in-memory store.
func NewMemoryPendingStore(opts ...PendingStoreOption) *MemoryPendingStore {
	return &MemoryPendingStore{
		entries: make(map[string]PendingRegistration),
		opts:    defaultPendingOptions(opts),
	}
}

func (s *MemoryPendingStore) Put(_ context.Context, email string, data PendingRegistration, code string) (*PendingRegistration, error) {
	key := NormalizeEmail(email)
	data.Email = key
	data.Code = NormalizeCode(code)
	data.ExpiresAt = s.opts.now().Add(s.opts.ttl)

	s.mu.Lock()
	s.entries[key] = data
	s.mu.Unlock()

	return &data, nil
}

func (s *MemoryPendingStore) Get(_ context.Context, email string) (*PendingRegistration, error) {
	key := NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, apperrors.ErrPendingNotFound
	}
	if s.opts.now().After(entry.ExpiresAt) {
		delete(s.entries, key)
		return nil, apperrors.ErrPendingNotFound
	}
	return &entry, nil
}

func (s *MemoryPendingStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	delete(s.entries, NormalizeEmail(email))
	s.mu.Unlock()
	return nil
}

func (s *MemoryPendingStore) Consume(_ context.Context, email, code string) (*PendingRegistration, error) {
	key := NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, apperrors.ErrPendingNotFound
	}
	if s.opts.now().After(entry.ExpiresAt) {
		delete(s.entries, key)
		return nil, apperrors.ErrCodeExpired
	}
	if entry.Code != NormalizeCode(code) {
		return nil, apperrors.ErrCodeMismatch
	}
	delete(s.entries, key)
	return &entry, nil
}

func (s *MemoryPendingStore) Sweep(_ context.Context) (int, error) {
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
