package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxCodeCollisions = 5

// delIfEquals removes the slot pointer only while it still points at the consumed code.
var delIfEquals = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps OTP records in Redis. Records live for ttl+purgeGrace so an
// expired code is still recognised (and reported as expired) for a while before
// Redis purges it.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	purgeGrace  time.Duration
	maxAttempts int
	now         func() time.Time
	generate    func() (string, error)
}

type StoreOption func(*RedisStore)

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPurgeGrace(grace time.Duration) StoreOption {
	return func(s *RedisStore) {
		if grace >= 0 {
			s.purgeGrace = grace
		}
	}
}

func WithMaxAttempts(n int) StoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

func WithGenerator(fn func() (string, error)) StoreOption {
	return func(s *RedisStore) {
		s.generate = fn
	}
}

func NewRedisStore(client *redis.Client, opts ...StoreOption) *RedisStore {
	s := &RedisStore{
		client:      client,
		ttl:         10 * time.Minute,
		purgeGrace:  time.Hour,
		maxAttempts: 3,
		now:         time.Now,
		generate:    Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates a fresh code for (user, action, booking), superseding any live
// code for the same tuple.
func (s *RedisStore) Issue(ctx context.Context, userID string, action domain.OTPAction, bookingID string) (*domain.OTPRecord, error) {
	if userID == "" {
		return nil, domain.Validationf("user id is required")
	}
	if !action.Valid() {
		return nil, domain.Validationf("unknown otp action %q", action)
	}
	if action.BookingAction() && bookingID == "" {
		return nil, domain.Validationf("booking id is required for %s", action)
	}

	if err := s.Revoke(ctx, userID, action, bookingID); err != nil {
		return nil, err
	}

	now := s.now()
	rec := &domain.OTPRecord{
		UserID:    userID,
		Action:    action,
		BookingID: bookingID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	keep := s.ttl + s.purgeGrace

	for i := 0; i < maxCodeCollisions; i++ {
		code, err := s.generate()
		if err != nil {
			return nil, err
		}
		rec.Code = code

		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal otp: %w", err)
		}
		ok, err := s.client.SetNX(ctx, codeKey(userID, code), data, keep).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to store otp: %w", err)
		}
		if !ok {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Set(ctx, slotKey(userID, action, bookingID), code, keep)
		pipe.SAdd(ctx, codesKey(userID), code)
		pipe.Expire(ctx, codesKey(userID), keep)
		pipe.Del(ctx, attemptsKey(userID))
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to index otp: %w", err)
		}
		return rec, nil
	}
	return nil, errors.New("failed to allocate a unique otp code")
}

// Verify consumes the code. The record is deleted whatever the outcome.
func (s *RedisStore) Verify(ctx context.Context, userID, code string) (*domain.OTPRecord, error) {
	if !WellFormed(code) {
		return nil, s.failAttempt(ctx, userID)
	}

	data, err := s.client.GetDel(ctx, codeKey(userID, code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, s.failAttempt(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read otp: %w", err)
	}

	var rec domain.OTPRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode otp: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.SRem(ctx, codesKey(userID), code)
	delIfEquals.Eval(ctx, pipe, []string{slotKey(userID, rec.Action, rec.BookingID)}, code)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to unindex otp: %w", err)
	}

	if rec.Expired(s.now()) {
		return nil, domain.ExpiredOTP()
	}
	if err := s.client.Del(ctx, attemptsKey(userID)).Err(); err != nil {
		return nil, fmt.Errorf("failed to reset otp attempts: %w", err)
	}
	return &rec, nil
}

// Revoke drops the live code for (user, action, booking), if any.
func (s *RedisStore) Revoke(ctx context.Context, userID string, action domain.OTPAction, bookingID string) error {
	code, err := s.client.GetDel(ctx, slotKey(userID, action, bookingID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read otp slot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, codeKey(userID, code))
	pipe.SRem(ctx, codesKey(userID), code)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke otp: %w", err)
	}
	return nil
}

func (s *RedisStore) failAttempt(ctx context.Context, userID string) error {
	n, err := s.client.Incr(ctx, attemptsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to count otp attempt: %w", err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, attemptsKey(userID), s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to count otp attempt: %w", err)
		}
	}
	if int(n) < s.maxAttempts {
		return domain.InvalidOTP(s.maxAttempts - int(n))
	}

	if err := s.revokeAll(ctx, userID); err != nil {
		return err
	}
	return domain.OTPAttemptsExceeded()
}

func (s *RedisStore) revokeAll(ctx context.Context, userID string) error {
	codes, err := s.client.SMembers(ctx, codesKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list otps: %w", err)
	}
	pipe := s.client.TxPipeline()
	for _, code := range codes {
		pipe.Del(ctx, codeKey(userID, code))
	}
	pipe.Del(ctx, codesKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke otps: %w", err)
	}
	return nil
}

func codeKey(userID, code string) string {
	return fmt.Sprintf("otp:%s:code:%s", userID, code)
}

func slotKey(userID string, action domain.OTPAction, bookingID string) string {
	return fmt.Sprintf("otp:%s:slot:%s:%s", userID, action, bookingID)
}

func codesKey(userID string) string {
	return fmt.Sprintf("otp:%s:codes", userID)
}

func attemptsKey(userID string) string {
	return fmt.Sprintf("otp:%s:attempts", userID)
}
