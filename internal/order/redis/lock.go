package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/logger"

	"github.com/go-redis/redis/v8"
)

const defaultLockTTL = 30 * time.Second

var ErrLockHeld = errors.New("payment is already being processed")

type Redis struct {
	Client  *redis.Client
	Logger  *logger.Logger
	LockTTL time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Redis{
		Client:  client,
		Logger:  log,
		LockTTL: ttl,
	}
}

func lockKey(orderNumber string) string {
	return "payment_lock:" + orderNumber
}

// IsPaymentLocked checks whether an order payment is being processed without locking it
func (r *Redis) IsPaymentLocked(ctx context.Context, orderNumber string) (bool, error) {
	_, err := r.Client.Get(ctx, lockKey(orderNumber)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LockPayment takes the per-order payment lock. It returns false when another
// holder owns it.
func (r *Redis) LockPayment(ctx context.Context, orderNumber, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, lockKey(orderNumber), owner, r.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock payment %s: %w", orderNumber, err)
	}
	if !ok && r.Logger != nil {
		r.Logger.Debug("REDIS", fmt.Sprintf("Payment lock for %s already held", orderNumber))
	}
	return ok, nil
}

// UnlockPayment releases the lock only if owner still holds it
func (r *Redis) UnlockPayment(ctx context.Context, orderNumber, owner string) error {
	key := lockKey(orderNumber)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // expired or already released
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// WithPaymentLock runs fn while holding the order payment lock.
func (r *Redis) WithPaymentLock(ctx context.Context, orderNumber, owner string, fn func() error) error {
	ok, err := r.LockPayment(ctx, orderNumber, owner)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	defer func() {
		if err := r.UnlockPayment(context.Background(), orderNumber, owner); err != nil && r.Logger != nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("Failed to release payment lock for %s: %v", orderNumber, err))
		}
	}()
	return fn()
}
