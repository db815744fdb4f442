package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"requestportal/internal/cache"
	apperrors "requestportal/internal/errors"
)

const pendingKeyPrefix = "pending_registration:"

// Consume outcomes returned by consumeScript.
const (
	consumeNotFound int64 = iota
	consumeExpired
	consumeMismatch
	consumeOK
)

// consumeScript compares the submitted code and deletes the entry in one step.
// KEYS[1] entry key, ARGV[1] normalized code, ARGV[2] now in unix millis.
var consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return {0}
end
local entry = cjson.decode(raw)
if tonumber(ARGV[2]) > tonumber(entry.expiresAtMs) then
	redis.call('DEL', KEYS[1])
	return {1}
end
if entry.code ~= ARGV[1] then
	return {2}
end
redis.call('DEL', KEYS[1])
return {3, raw}
`)

// pendingRecord is the stored form; expiry is kept in millis for the Lua script.
type pendingRecord struct {
	PendingRegistration
	ExpiresAtMs int64 `json:"expiresAtMs"`
}

// RedisPendingStore keeps pending registrations in Redis so every instance sees
// the same entries. Keys carry a TTL, so Sweep has nothing to do.
type RedisPendingStore struct {
	cache *cache.Client
	opts  pendingOptions
}

// Ensure RedisPendingStore implements PendingStore
var _ PendingStore = (*RedisPendingStore)(nil)

// NewRedisPendingStore creates a Redis-backed pending store.
func NewRedisPendingStore(cache *cache.Client, opts ...PendingStoreOption) *RedisPendingStore {
	return &RedisPendingStore{cache: cache, opts: defaultPendingOptions(opts)}
}

func pendingKey(email string) string {
	return pendingKeyPrefix + NormalizeEmail(email)
}

func (s *RedisPendingStore) Put(ctx context.Context, email string, data PendingRegistration, code string) (*PendingRegistration, error) {
	data.Email = NormalizeEmail(email)
	data.Code = NormalizeCode(code)
	data.ExpiresAt = s.opts.now().Add(s.opts.ttl)

	payload, err := json.Marshal(pendingRecord{PendingRegistration: data, ExpiresAtMs: data.ExpiresAt.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("marshal pending registration: %w", err)
	}
	if err := s.cache.Set(ctx, pendingKey(email), payload, s.opts.ttl); err != nil {
		return nil, fmt.Errorf("store pending registration: %w", err)
	}
	return &data, nil
}

func (s *RedisPendingStore) Get(ctx context.Context, email string) (*PendingRegistration, error) {
	raw, err := s.cache.Get(ctx, pendingKey(email))
	if errors.Is(err, cache.ErrMiss) {
		return nil, apperrors.ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending registration: %w", err)
	}

	record, err := decodePending(raw)
	if err != nil {
		return nil, err
	}
	if s.opts.now().After(record.ExpiresAt) {
		_ = s.cache.Delete(ctx, pendingKey(email))
		return nil, apperrors.ErrPendingNotFound
	}
	return &record.PendingRegistration, nil
}

func (s *RedisPendingStore) Delete(ctx context.Context, email string) error {
	return s.cache.Delete(ctx, pendingKey(email))
}

func (s *RedisPendingStore) Consume(ctx context.Context, email, code string) (*PendingRegistration, error) {
	reply, err := s.cache.Run(ctx, consumeScript,
		[]string{pendingKey(email)},
		NormalizeCode(code), s.opts.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("consume pending registration: %w", err)
	}

	outcome, raw, err := parseConsumeReply(reply)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case consumeNotFound:
		return nil, apperrors.ErrPendingNotFound
	case consumeExpired:
		return nil, apperrors.ErrCodeExpired
	case consumeMismatch:
		return nil, apperrors.ErrCodeMismatch
	}

	record, err := decodePending([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &record.PendingRegistration, nil
}

// Sweep is a no-op: Redis expires keys itself.
func (s *RedisPendingStore) Sweep(context.Context) (int, error) {
	return 0, nil
}

func parseConsumeReply(reply interface{}) (int64, string, error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) == 0 {
		return 0, "", fmt.Errorf("unexpected consume reply %T", reply)
	}
	outcome, ok := values[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("unexpected consume outcome %T", values[0])
	}
	if outcome != consumeOK {
		return outcome, "", nil
	}
	if len(values) < 2 {
		return 0, "", errors.New("consume reply missing entry")
	}
	raw, ok := values[1].(string)
	if !ok {
		return 0, "", fmt.Errorf("unexpected consume entry %T", values[1])
	}
	return outcome, raw, nil
}

func decodePending(raw []byte) (*pendingRecord, error) {
	var record pendingRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal pending registration: %w", err)
	}
	return &record, nil
}
