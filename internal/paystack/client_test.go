package paystack

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, "sk_test", "https://shop.example/verify", 2*time.Second)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAuthorize(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 2500, body["amount"])
		assert.Equal(t, "ord_1", body["reference"])
		assert.Equal(t, "https://shop.example/verify", body["callback_url"])
		writeJSON(w, 200, map[string]any{"status": true, "data": map[string]any{
			"authorization_url": "https://checkout.example/abc", "reference": "ord_1",
		}})
	})

	auth, err := c.Authorize(context.Background(), gateway.AuthorizeRequest{
		Reference: "ord_1", Amount: money.New(2500, "NGN"), Method: "card", Email: "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/abc", auth.AuthorizationURL)
	assert.Equal(t, gateway.ChargePending, auth.Status)
}

func TestVerify(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ord_1", r.URL.Path)
		writeJSON(w, 200, map[string]any{"status": true, "data": map[string]any{
			"status": "success", "amount": 2500, "currency": "NGN", "reference": "ord_1",
		}})
	})

	v, err := c.Verify(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, gateway.ChargeSuccess, v.Status)
	assert.Equal(t, money.New(2500, "NGN"), v.Amount)
	assert.NotEmpty(t, v.Raw)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		code      int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.code, map[string]any{"status": false, "message": "nope"})
			})
			_, err := c.Verify(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tc.transient, gateway.IsTransient(err))
			assert.Equal(t, !tc.transient, gateway.IsRejected(err))
		})
	}
}

func TestStatusFalseIsRejected(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"status": false, "message": "Could not resolve account name"})
	})
	_, err := c.ResolveAccountName(context.Background(), "0000000000", "058")
	assert.True(t, gateway.IsRejected(err))
}

func TestSlowServerIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "sk", "", 20*time.Millisecond)

	_, err := c.ListBanks(context.Background(), "NGN")
	assert.True(t, gateway.IsTransient(err))
}

func TestDisburse(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transferrecipient":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "0123456789", body["account_number"])
			writeJSON(w, 201, map[string]any{"status": true, "data": map[string]any{"recipient_code": "RCP_1"}})
		case "/transfer":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "RCP_1", body["recipient"])
			assert.Equal(t, "po_o_s", body["reference"])
			writeJSON(w, 200, map[string]any{"status": true, "data": map[string]any{"transfer_code": "TRF_1", "status": "pending"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	tr, err := c.Disburse(context.Background(), gateway.Payout{
		Destination: gateway.Destination{BankCode: "058", AccountNumber: "0123456789", AccountName: "ADA LOVELACE"},
		Amount:      money.New(2000, "NGN"),
		Reference:   "po_o_s",
	})
	require.NoError(t, err)
	assert.Equal(t, "TRF_1", tr.TransferID)
}

func TestDisburse_DuplicateReferenceFetchesExisting(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transferrecipient":
			writeJSON(w, 200, map[string]any{"status": true, "data": map[string]any{"recipient_code": "RCP_1"}})
		case "/transfer":
			writeJSON(w, 400, map[string]any{"status": false, "message": "Duplicate Transfer Reference"})
		case "/transfer/verify/po_o_s":
			writeJSON(w, 200, map[string]any{"status": true, "data": map[string]any{"transfer_code": "TRF_1", "status": "success"}})
		}
	})

	tr, err := c.Disburse(context.Background(), gateway.Payout{Amount: money.New(1, "NGN"), Reference: "po_o_s"})
	require.NoError(t, err)
	assert.Equal(t, "success", tr.Status)
}

func TestListBanks(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NGN", r.URL.Query().Get("currency"))
		writeJSON(w, 200, map[string]any{"status": true, "data": []map[string]any{
			{"name": "Access Bank", "code": "044"}, {"name": "GTBank", "code": "058"},
		}})
	})
	banks, err := c.ListBanks(context.Background(), "NGN")
	require.NoError(t, err)
	assert.Equal(t, []gateway.Bank{{Code: "044", Name: "Access Bank"}, {Code: "058", Name: "GTBank"}}, banks)
}
