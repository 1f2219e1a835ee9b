package httpx

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"github.com/ariefcatur/go-marketplace-orders/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"net/http"
	"time"
)

// settleTimeout bounds payouts started by a request; they continue if the client disconnects.
const settleTimeout = 2 * time.Minute

type OrdersHandler struct {
	Checkout   *checkout.Service
	Query      *orders.Query
	Settlement *settlement.Engine
	Status     *redisx.StatusCache
	Sessions   *session.Store
	Log        zerolog.Logger
}

type checkoutReq struct {
	Shipping orders.ShippingInfo  `json:"shipping_info"`
	Method   orders.PaymentMethod `json:"payment_method"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireSession(h.Sessions, h.Log, session.RoleBuyer))
		r.Post("/checkout", h.checkout)
		r.Get("/payments/verify", h.verifyPayment)
		r.Get("/orders", h.listOrders)
		r.Post("/orders/{id}/confirm-delivery", h.confirmDelivery)
		r.Get("/orders/{id}/status", h.orderStatus)
	})
	r.With(RequireSession(h.Sessions, h.Log, session.RoleBuyer, session.RoleOperator)).
		Get("/orders/{id}", h.getOrder)
	r.With(RequireSession(h.Sessions, h.Log, session.RoleOperator)).
		Post("/admin/orders/{id}/settlement/retry", h.retrySettlement)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	res, err := h.Checkout.PlaceOrder(r.Context(), sessionFrom(r.Context()), checkout.Request{
		Shipping:       req.Shipping,
		Method:         req.Method,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	code := http.StatusCreated
	switch {
	case res.Order.PaymentStatus == orders.StatusFailed:
		// declined: the buyer retries with a new checkout
		code = http.StatusPaymentRequired
	case res.Replayed:
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (h *OrdersHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("order_id")
	if _, err := h.Query.GetDetail(r.Context(), id, sessionFrom(r.Context()).AccountID, orders.RoleBuyer); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err := h.Checkout.VerifyPayment(r.Context(), id, q.Get("reference"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Query.ListForBuyer(r.Context(), sessionFrom(r.Context()).AccountID, orders.Page{
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if list == nil {
		list = []*orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	d, err := h.Query.GetDetail(r.Context(), chi.URLParam(r, "id"), s.AccountID, viewerRole(s))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// orderStatus serves the polling path from the status cache and falls back to the store.
func (h *OrdersHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	buyer := sessionFrom(r.Context()).AccountID
	if h.Status != nil {
		if cs, ok, err := h.Status.Get(r.Context(), id); err == nil && ok && cs.BuyerID == buyer {
			writeJSON(w, http.StatusOK, cs)
			return
		}
	}
	d, err := h.Query.GetDetail(r.Context(), id, buyer, orders.RoleBuyer)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	cs := h.cache(r.Context(), d.Order)
	writeJSON(w, http.StatusOK, cs)
}

func (h *OrdersHandler) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), settleTimeout)
	defer cancel()
	rep, err := h.Settlement.ConfirmDelivery(ctx, chi.URLParam(r, "id"), sessionFrom(r.Context()).AccountID)
	h.settled(w, r, rep, err)
}

func (h *OrdersHandler) retrySettlement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), settleTimeout)
	defer cancel()
	includeRejected := r.URL.Query().Get("include_rejected") != "false"
	rep, err := h.Settlement.Retry(ctx, chi.URLParam(r, "id"), includeRejected)
	h.settled(w, r, rep, err)
}

// settled answers 200 for full settlement and 207 with per-seller results for partial.
func (h *OrdersHandler) settled(w http.ResponseWriter, r *http.Request, rep *settlement.Report, err error) {
	var pe *settlement.PartialError
	switch {
	case errors.As(err, &pe):
		h.cache(r.Context(), pe.Order)
		writeJSON(w, http.StatusMultiStatus, pe.Report)
	case err != nil:
		writeError(w, r, h.Log, err)
	default:
		h.cache(r.Context(), rep.Order)
		writeJSON(w, http.StatusOK, rep)
	}
}

func (h *OrdersHandler) cache(ctx context.Context, o *orders.Order) redisx.CachedStatus {
	cs := redisx.CachedStatus{
		BuyerID:          o.BuyerID,
		PaymentStatus:    string(o.PaymentStatus),
		SettlementStatus: string(o.SettlementStatus),
		UpdatedAt:        o.UpdatedAt,
	}
	if h.Status != nil {
		_ = h.Status.Put(ctx, o.ID, cs)
	}
	return cs
}
