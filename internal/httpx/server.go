package httpx

import (
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/sellers"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"net/http"
	"strconv"
	"time"
)

func NewRouter(log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := log.Info()
			if status >= 500 {
				ev = log.Error()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) int {
	var (
		ve *orders.ValidationError
		se *cart.SyncError
		re *gateway.RejectedError
	)
	switch {
	case errors.As(err, &se), errors.Is(err, cart.ErrNotSynced):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ve), errors.Is(err, session.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, catalog.ErrNotFound), errors.Is(err, sellers.ErrUnknownSeller):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrVersionConflict):
		return http.StatusConflict
	case errors.As(err, &re):
		return http.StatusPaymentRequired
	case gateway.IsTransient(err):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ve *orders.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &orders.ValidationError{Msg: "invalid json"}
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}
