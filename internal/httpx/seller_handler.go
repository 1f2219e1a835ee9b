package httpx

import (
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/sellers"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"net/http"
)

// SellerHandler is the seller dashboard: own orders, stats and payout setup.
type SellerHandler struct {
	Query    *orders.Query
	Sellers  *sellers.Service
	Sessions *session.Store
	Log      zerolog.Logger
}

type accountReq struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

func (h *SellerHandler) Register(r chi.Router) {
	r.Route("/seller", func(r chi.Router) {
		r.Use(RequireSession(h.Sessions, h.Log, session.RoleSeller))
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/stats", h.stats)
		r.Get("/banks", h.banks)
		r.Post("/payout/verify-account", h.verifyAccount)
		r.Post("/payout/setup", h.setupPayout)
	})
}

func (h *SellerHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.Query.ListForSeller(r.Context(), sessionFrom(r.Context()).AccountID, orders.SellerFilter{
		Status: orders.Status(q.Get("status")),
		Search: q.Get("search"),
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if views == nil {
		views = []orders.SellerView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *SellerHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	d, err := h.Query.GetDetail(r.Context(), chi.URLParam(r, "id"), sessionFrom(r.Context()).AccountID, orders.RoleSeller)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Seller)
}

func (h *SellerHandler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Query.SellerStats(r.Context(), sessionFrom(r.Context()).AccountID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *SellerHandler) banks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.Sellers.ListBanks(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if banks == nil {
		banks = []gateway.Bank{}
	}
	writeJSON(w, http.StatusOK, banks)
}

func (h *SellerHandler) verifyAccount(w http.ResponseWriter, r *http.Request) {
	var req accountReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	d, err := h.Sellers.VerifyAccount(r.Context(), req.AccountNumber, req.BankCode)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *SellerHandler) setupPayout(w http.ResponseWriter, r *http.Request) {
	var req accountReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	d, err := h.Sellers.SetupPayout(r.Context(), sessionFrom(r.Context()).AccountID, req.AccountNumber, req.BankCode)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
