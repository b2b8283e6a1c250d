package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the requested lock.
var ErrLockHeld = errors.New("lock already held")

// DistributedLock is a handle to an acquired lock. The token guards against
// releasing a lock that expired and was re-acquired by someone else.
type DistributedLock struct {
	Key        string
	Token      string
	TTL        time.Duration
	AcquiredAt time.Time
}

type LockRepository interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error)
	Release(ctx context.Context, lock *DistributedLock) error
	Extend(ctx context.Context, lock *DistributedLock, ttl time.Duration) error
}

type lockRepository struct {
	client *redis.Client
}

func NewLockRepository(client *redis.Client) LockRepository {
	return &lockRepository{
		client: client,
	}
}

const (
	lockPrefix = "lock:"

	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`

	extendScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("EXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

func (r *lockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	lockKey := lockPrefix + key
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	return &DistributedLock{
		Key:        lockKey,
		Token:      token,
		TTL:        ttl,
		AcquiredAt: time.Now(),
	}, nil
}

func (r *lockRepository) Release(ctx context.Context, lock *DistributedLock) error {
	result, err := r.client.Eval(ctx, releaseScript, []string{lock.Key}, lock.Token).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lock.Key, err)
	}

	if result.(int64) == 0 {
		return fmt.Errorf("lock not owned or already released: %s", lock.Key)
	}

	return nil
}

func (r *lockRepository) Extend(ctx context.Context, lock *DistributedLock, ttl time.Duration) error {
	result, err := r.client.Eval(ctx, extendScript, []string{lock.Key}, lock.Token, int(ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", lock.Key, err)
	}

	if result.(int64) == 0 {
		return fmt.Errorf("lock not owned: %s", lock.Key)
	}

	lock.TTL = ttl
	return nil
}

// AccountLockManager serializes submit, confirm and timeout for one account.
// Every mutation of account state runs under WithAccountLock so the
// read-evaluate-write sequence is exclusive per account.
type AccountLockManager interface {
	WithAccountLock(ctx context.Context, accountID int64, fn func(ctx context.Context) error) error
}

type accountLockManager struct {
	lockRepo LockRepository
	ttl      time.Duration
	retry    time.Duration
	maxWait  time.Duration
}

func NewAccountLockManager(lockRepo LockRepository, ttl time.Duration) AccountLockManager {
	return &accountLockManager{
		lockRepo: lockRepo,
		ttl:      ttl,
		retry:    50 * time.Millisecond,
		maxWait:  5 * time.Second,
	}
}

func (m *accountLockManager) WithAccountLock(ctx context.Context, accountID int64, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("account:%d", accountID)
	deadline := time.Now().Add(m.maxWait)

	var lock *DistributedLock
	for {
		var err error
		lock, err = m.lockRepo.Acquire(ctx, key, m.ttl)
		if err == nil {
			break
		}
		if !isLockHeld(err) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for account %d lock: %w", accountID, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retry):
		}
	}

	defer func() {
		// Best effort; an expired lock releases itself.
		_ = m.lockRepo.Release(context.WithoutCancel(ctx), lock)
	}()

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go m.keepAlive(ctx, lock, heartbeatDone)

	return fn(ctx)
}

// keepAlive extends the lock at half-TTL intervals so a critical section
// that outlives the TTL, such as a long timeout sweep, keeps its lock.
func (m *accountLockManager) keepAlive(ctx context.Context, lock *DistributedLock, done <-chan struct{}) {
	if m.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := m.lockRepo.Extend(context.WithoutCancel(ctx), lock, m.ttl); err != nil {
				return
			}
		}
	}
}

func isLockHeld(err error) bool {
	return errors.Is(err, ErrLockHeld)
}
