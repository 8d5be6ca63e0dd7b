package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
)

type CartService interface {
	AddToCart(ctx context.Context, userID, productID string, lines []domain.Line) error
	IncreaseItem(ctx context.Context, userID, productID string, line domain.Line) error
	DecreaseItem(ctx context.Context, userID, productID string, line domain.Line) error
	RemoveItem(ctx context.Context, userID, productID string) error
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
}

type CartHandler struct {
	Carts CartService
	Log   *zap.Logger
}

type lineReq struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// line keeps an unparseable size as-is so the cart manager reports it.
func (l lineReq) line() domain.Line {
	sz, err := domain.ParseSize(l.Size)
	if err != nil {
		sz = domain.Size(l.Size)
	}
	return domain.Line{Size: sz, Quantity: l.Quantity}
}

type addToCartReq struct {
	ProductID string    `json:"product_id"`
	Lines     []lineReq `json:"lines"`
}

type itemView struct {
	ProductID string              `json:"product_id"`
	Quantity  int                 `json:"quantity"`
	Sizes     map[domain.Size]int `json:"sizes"`
	AddedAt   time.Time           `json:"added_at"`
}

type cartView struct {
	ID    string     `json:"id,omitempty"`
	Items []itemView `json:"items"`
}

func viewCart(c domain.Cart) cartView {
	v := cartView{ID: c.ID, Items: make([]itemView, 0, len(c.Items))}
	for _, it := range c.Items {
		iv := itemView{ProductID: it.ProductID, Quantity: it.Quantity, Sizes: map[domain.Size]int{}, AddedAt: it.AddedAt}
		for _, r := range c.Reservations {
			if r.ProductID == it.ProductID {
				iv.Sizes[r.Size] += r.Qty
			}
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", h.getCart)
		r.Post("/items", h.addItem)
		r.Delete("/items/{productID}", h.removeItem)
		r.Post("/items/{productID}/increase", h.increaseItem)
		r.Post("/items/{productID}/decrease", h.decreaseItem)
	})
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts.GetCart(ctx, userFrom(ctx))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ok(w, http.StatusOK, "Cart fetched", viewCart(c))
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addToCartReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	lines := make([]domain.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, l.line())
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Carts.AddToCart(ctx, userFrom(ctx), req.ProductID, lines); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ok(w, http.StatusCreated, "Product added to cart", nil)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Carts.RemoveItem(ctx, userFrom(ctx), chi.URLParam(r, "productID")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ok(w, http.StatusOK, "Item removed from cart", nil)
}

func (h *CartHandler) increaseItem(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.Carts.IncreaseItem, "Item quantity increased")
}

func (h *CartHandler) decreaseItem(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.Carts.DecreaseItem, "Item quantity decreased")
}

func (h *CartHandler) adjust(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID, productID string, line domain.Line) error, msg string) {
	var req lineReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := op(ctx, userFrom(ctx), chi.URLParam(r, "productID"), req.line()); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ok(w, http.StatusOK, msg, nil)
}
