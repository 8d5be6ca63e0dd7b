// Package payment talks to the payment gateway: it creates remote orders and
// authenticates payment callbacks.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const StatusCreated = "created"

var ErrUnexpectedResponse = errors.New("unexpected gateway response")

type CreateOrderRequest struct {
	Amount         int64  `json:"amount"` // minor units
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture bool   `json:"payment_capture"`
}

type GatewayOrder struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
}

// MinorUnits converts an amount to the gateway's smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	hc        *http.Client
}

func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		hc:        &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (GatewayOrder, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("encode order request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("build order request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("reach gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Description != "" {
			return GatewayOrder{}, fmt.Errorf("%w: %d %s: %s", ErrUnexpectedResponse, resp.StatusCode, eb.Error.Code, eb.Error.Description)
		}
		return GatewayOrder{}, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	var out GatewayOrder
	if err := json.Unmarshal(raw, &out); err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: decode: %v", ErrUnexpectedResponse, err)
	}
	if out.ID == "" || out.Status != StatusCreated {
		return GatewayOrder{}, fmt.Errorf("%w: id=%q status=%q", ErrUnexpectedResponse, out.ID, out.Status)
	}
	return out, nil
}
