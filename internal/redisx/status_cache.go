package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
)

// OrderStatus is the cached view served by GET /orders/{id}.
type OrderStatus struct {
	OrderID       string               `json:"order_id"`
	CustomerID    string               `json:"customer_id"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	OrderStatus   domain.OrderStatus   `json:"order_status"`
	TotalAmount   string               `json:"total_amount"`
	Currency      string               `json:"currency"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func StatusOf(o domain.Order) OrderStatus {
	return OrderStatus{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		PaymentStatus: o.PaymentStatus,
		OrderStatus:   o.OrderStatus,
		TotalAmount:   o.TotalAmount.StringFixed(2),
		Currency:      o.Currency,
		UpdatedAt:     o.UpdatedAt,
	}
}

type StatusCache struct {
	rdb redis.Cmdable
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache {
	return &StatusCache{rdb: rdb}
}

func (c *StatusCache) Put(ctx context.Context, s OrderStatus) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, s.OrderID), b, TTLStatusCache).Err()
}

// Get reports ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	var s OrderStatus
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, false, nil
	}
	if err != nil {
		return s, false, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, false, fmt.Errorf("decode order status: %w", err)
	}
	return s, true, nil
}
