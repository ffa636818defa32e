// Package attempt stores pending wallet payment attempts server-side. An
// attempt ties a wallet approval session to the user and cart it was created
// for, until the user returns from the provider or the record expires.
package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

type Attempt struct {
	ID             string              `json:"id"`
	UserID         string              `json:"userId"`
	PaymentMethod  order.PaymentMethod `json:"paymentMethod"`
	GatewayOrderID string              `json:"gatewayOrderId"`
	Amount         string              `json:"amount"`
	Currency       string              `json:"currency"`
	Total          decimal.Decimal     `json:"total"`
	CartVersion    int64               `json:"cartVersion"`
	CreatedAt      time.Time           `json:"createdAt"`
	ExpiresAt      time.Time           `json:"expiresAt"`
}

type Store interface {
	Save(ctx context.Context, a *Attempt, ttl time.Duration) error
	// Get returns nil, nil when the attempt is unknown or expired.
	Get(ctx context.Context, id string) (*Attempt, error)
	Delete(ctx context.Context, id string) error
}

type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "checkout:attempt:"}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Save(ctx context.Context, a *Attempt, ttl time.Duration) error {
	if a.ID == "" {
		return errors.New("attempt id is required")
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(a.ID), body, ttl).Err(); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Attempt, error) {
	body, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	var a Attempt
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return &a, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	return nil
}
