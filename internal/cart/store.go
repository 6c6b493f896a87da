package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "cart:"

// Store keeps one cart per session in Redis.
type Store struct {
	Client  *redis.Client
	TTL     time.Duration
	Pricing Pricing
}

func NewStore(client *redis.Client, ttl time.Duration, pricing Pricing) *Store {
	return &Store{Client: client, TTL: ttl, Pricing: pricing}
}

// Load returns the session's cart, or an empty cart on first access.
func (s *Store) Load(ctx context.Context, sessionID string) (*Cart, error) {
	raw, err := s.Client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return New(s.Pricing), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", sessionID, err)
	}

	c := New(s.Pricing)
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", sessionID, err)
	}
	if c.Lines == nil {
		c.Lines = New(s.Pricing).Lines
	}
	c.SetPricing(s.Pricing)
	return c, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, c *Cart) error {
	c.Summary()
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", sessionID, err)
	}
	return s.Client.Set(ctx, keyPrefix+sessionID, raw, s.TTL).Err()
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.Client.Del(ctx, keyPrefix+sessionID).Err()
}

// Clear empties the session's cart.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.Delete(ctx, sessionID)
}
