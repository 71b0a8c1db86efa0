package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is the subset of redis commands the lock needs; tests swap in a
// mock implementation.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Lock serializes mutations on a single payment. A SETNX key per payment
// id with a TTL bounds how long a crashed holder can block others.
type Lock struct {
	Client Client
	TTL    time.Duration
	Logger *log.Logger
}

func NewLock(client Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{
		Client: client,
		TTL:    ttl,
		Logger: log.Default(),
	}
}

func paymentLockKey(paymentID string) string {
	return "payment_lock:" + paymentID
}

// AcquirePayment takes the mutation lock for one payment. The token
// identifies the holder so only it can release.
func (l *Lock) AcquirePayment(paymentID, token string) (bool, error) {
	key := paymentLockKey(paymentID)
	ok, err := l.Client.SetNX(context.Background(), key, token, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock error for payment %s: %w", paymentID, err)
	}
	return ok, nil
}

// ReleasePayment drops the lock if this holder still owns it. A lock that
// expired and was re-acquired by someone else is left alone.
func (l *Lock) ReleasePayment(paymentID, token string) error {
	ctx := context.Background()
	key := paymentLockKey(paymentID)

	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err := l.Client.Del(ctx, key).Result()
		return err
	}
	l.Logger.Printf("payment lock %s held by another owner, not releasing", key)
	return nil
}
