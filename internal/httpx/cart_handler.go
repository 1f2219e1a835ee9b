package httpx

import (
	"context"
	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"net/http"
)

type ProductLister interface {
	List(ctx context.Context, f catalog.Filter) ([]catalog.Product, error)
}

// CartHandler serves the catalog listing and the session cart.
type CartHandler struct {
	Catalog  ProductLister
	Carts    *cart.Service
	Sessions *session.Store
	Log      zerolog.Logger
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type syncResp struct {
	Cart        *cart.Cart        `json:"cart"`
	Adjustments []cart.Adjustment `json:"adjustments,omitempty"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Route("/cart", func(r chi.Router) {
		r.Use(RequireSession(h.Sessions, h.Log))
		r.Get("/", h.get)
		r.Delete("/", h.clear)
		r.Post("/items", h.add)
		r.Post("/items/{productID}/decrease", h.decrease)
		r.Delete("/items/{productID}", h.remove)
		r.Post("/sync", h.sync)
	})
}

func (h *CartHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.List(r.Context(), catalog.Filter{
		SellerID: r.URL.Query().Get("seller_id"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Get(r.Context(), sessionFrom(r.Context()))
	h.respond(w, r, c, err)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	c, err := h.Carts.Add(r.Context(), sessionFrom(r.Context()), req.ProductID, req.Quantity)
	h.respond(w, r, c, err)
}

func (h *CartHandler) decrease(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Decrease(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "productID"))
	h.respond(w, r, c, err)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Remove(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "productID"))
	h.respond(w, r, c, err)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), sessionFrom(r.Context())); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) sync(w http.ResponseWriter, r *http.Request) {
	c, adj, err := h.Carts.Sync(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResp{Cart: c, Adjustments: adj})
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, c *cart.Cart, err error) {
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	writeJSON(w, http.StatusOK, c)
}
