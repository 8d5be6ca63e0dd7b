package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Sizes     map[Size]int // stock per size variant
	Inventory int          // sum of Sizes
	InStock   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recompute resets Inventory and InStock from the per-size stock.
func (p *Product) Recompute() {
	total := 0
	for _, n := range p.Sizes {
		total += n
	}
	p.Inventory = total
	p.InStock = total > 0
}

// Clone returns a copy that does not share the size map.
func (p Product) Clone() Product {
	sizes := make(map[Size]int, len(p.Sizes))
	for k, v := range p.Sizes {
		sizes[k] = v
	}
	p.Sizes = sizes
	return p
}

type Customer struct {
	ID               string
	Name             string
	Email            string
	Phone            string
	CartProductCount int
}

// MissingProfileFields lists the contact fields a payment UI needs but the customer lacks.
func (c Customer) MissingProfileFields() []string {
	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.Email == "" {
		missing = append(missing, "email")
	}
	if c.Phone == "" {
		missing = append(missing, "phone")
	}
	return missing
}

type Cart struct {
	ID           string
	UserID       string
	Items        []CartItem
	Reservations []Reservation
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CartItem struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Reservation records how many units of one size a cart line holds.
type Reservation struct {
	CartID    string
	ProductID string
	Size      Size
	Qty       int
}

type Order struct {
	ID             string
	CartID         string
	CustomerID     string
	TotalAmount    decimal.Decimal
	Currency       string
	GatewayOrderID string
	PaymentID      *string
	PaymentStatus  PaymentStatus
	OrderStatus    OrderStatus
	OrderDate      time.Time
	PaidAt         *time.Time
	UpdatedAt      time.Time
}

// Line is one size/quantity pair of an add-to-cart request.
type Line struct {
	Size     Size `json:"size"`
	Quantity int  `json:"quantity"`
}
