package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockHeld    = errors.New("lock_held")
	ErrInvalidLock = errors.New("invalid_lock")
)

// compareAndDelete removes KEYS[1] only while it still holds the lease token.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out expiring single-holder leases so only one scheduler
// replica sweeps purchases and listings at a time.
type Locker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, prefix: "hireboard:lock:"}
}

// Lease is a held lock. Release is safe to call more than once and after
// the lease has expired.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire returns ErrLockHeld while another holder's lease is live.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrNotConfigured
	}
	if name == "" || ttl <= 0 {
		return nil, ErrInvalidLock
	}

	lease := &Lease{locker: l, key: l.prefix + name, token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return lease, nil
}

func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.token == "" {
		return nil
	}
	err := compareAndDelete.Run(ctx, le.locker.client, []string{le.key}, le.token).Err()
	le.token = ""
	return err
}
