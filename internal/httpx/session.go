package httpx

import (
	"context"
	"crypto/subtle"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"net/http"
	"slices"
)

const (
	SessionHeader     = "X-Session-Id"
	OperatorKeyHeader = "X-Operator-Key"
)

type ctxKey struct{}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxKey{}).(*session.Session)
	return s
}

// RequireSession resolves X-Session-Id and, when roles are given, restricts the route to them.
func RequireSession(store *session.Store, log zerolog.Logger, roles ...session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := store.Get(r.Context(), r.Header.Get(SessionHeader))
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, s.Role) {
				writeError(w, r, log, orders.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
		})
	}
}

func viewerRole(s *session.Session) orders.Role {
	switch s.Role {
	case session.RoleSeller:
		return orders.RoleSeller
	case session.RoleOperator:
		return orders.RoleOperator
	}
	return orders.RoleBuyer
}

type SessionHandler struct {
	Sessions *session.Store
	// OperatorKey must accompany an operator login. Empty disables operator logins.
	OperatorKey string
	Log         zerolog.Logger
}

type loginReq struct {
	AccountID string       `json:"account_id"`
	Role      session.Role `json:"role"`
}

func (h *SessionHandler) Register(r chi.Router) {
	r.Post("/sessions", h.start)
	r.Group(func(r chi.Router) {
		r.Use(RequireSession(h.Sessions, h.Log))
		r.Post("/sessions/login", h.login)
		r.Delete("/sessions", h.logout)
	})
}

func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Start(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// login binds an account that the upstream identity provider has already authenticated.
func (h *SessionHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Role == session.RoleOperator && !h.operatorKeyOK(r.Header.Get(OperatorKeyHeader)) {
		writeError(w, r, h.Log, orders.ErrForbidden)
		return
	}
	s, err := h.Sessions.Bind(r.Context(), sessionFrom(r.Context()).ID, req.AccountID, req.Role)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) operatorKeyOK(key string) bool {
	return h.OperatorKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(h.OperatorKey)) == 1
}

func (h *SessionHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Invalidate(r.Context(), sessionFrom(r.Context()).ID); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
