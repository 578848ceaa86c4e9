package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis serializes approval's check-then-write per product. The lock is a
// SetNX key with a bounded TTL so a crashed holder cannot wedge a product.
type Redis struct {
	Client  *redis.Client
	LockTTL time.Duration
	Logger  *log.Logger
}

func NewRedis(client *redis.Client, lockTTL time.Duration) *Redis {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Redis{
		Client:  client,
		LockTTL: lockTTL,
		Logger:  log.Default(),
	}
}

func lockKey(productType, productID string) string {
	return fmt.Sprintf("product_lock:%s:%s", productType, productID)
}

// LockProduct acquires the product lock for the given booking. Returns
// false without error when another booking holds it.
func (r *Redis) LockProduct(ctx context.Context, productType, productID, bookingID string) (bool, error) {
	key := lockKey(productType, productID)
	ok, err := r.Client.SetNX(ctx, key, bookingID, r.LockTTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		r.Logger.Printf("REDIS: product %s already locked", key)
	}
	return ok, nil
}

// UnlockProduct releases the lock only if this booking still owns it.
func (r *Redis) UnlockProduct(ctx context.Context, productType, productID, bookingID string) error {
	key := lockKey(productType, productID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // TTL already reclaimed it
	}
	if err != nil {
		return err
	}
	if val == bookingID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
