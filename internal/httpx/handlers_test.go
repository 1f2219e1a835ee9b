package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway/gatewaytest"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/sellers"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"github.com/ariefcatur/go-marketplace-orders/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var (
	destX = gateway.Destination{BankCode: "058", AccountNumber: "0123456789", AccountName: "X Ltd"}
	destY = gateway.Destination{BankCode: "044", AccountNumber: "9876543210", AccountName: "Y Ltd"}
)

type app struct {
	router  *chi.Mux
	gw      *gatewaytest.Gateway
	store   *orders.MemoryStore
	sellers *sellers.Memory
}

const operatorKey = "ops-secret"

func newApp(t *testing.T) *app {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()
	cat := catalog.NewMemory(
		catalog.Product{ID: "productA", SellerID: "seller-x", Title: "Lamp", Price: money.New(1000, "NGN"), Available: true},
		catalog.Product{ID: "productB", SellerID: "seller-y", Title: "Mug", Price: money.New(500, "NGN"), Available: true},
	)
	server := cart.NewMemoryServerStore()
	carts := &cart.Service{
		Local:     &cart.RedisLocalStore{Redis: rdb},
		Server:    server,
		Authority: &cart.Authority{Catalog: cat, Store: server, Currency: "NGN"},
		Catalog:   cat,
	}
	store := orders.NewMemoryStore()
	gw := &gatewaytest.Gateway{}
	dest := sellers.NewMemory()
	sellerSvc := &sellers.Service{Store: dest, Gateway: gw, Redis: rdb, Currency: "NGN"}
	sessions := &session.Store{Redis: rdb, TTL: time.Hour}
	status := &redisx.StatusCache{Redis: rdb}
	query := &orders.Query{Store: store, Currency: "NGN"}

	r := NewRouter(log)
	(&SessionHandler{Sessions: sessions, OperatorKey: operatorKey, Log: log}).Register(r)
	(&CartHandler{Catalog: cat, Carts: carts, Sessions: sessions, Log: log}).Register(r)
	(&OrdersHandler{
		Checkout: &checkout.Service{
			Orders: store, Carts: carts, Catalog: cat, Gateway: gw,
			Idem: &redisx.Idempotency{Redis: rdb}, Status: status, Currency: "NGN", Log: log,
		},
		Query:      query,
		Settlement: &settlement.Engine{Store: store, Gateway: gw, Sellers: sellerSvc, FeeBps: 1000, Concurrency: 2, Log: log},
		Status:     status,
		Sessions:   sessions,
		Log:        log,
	}).Register(r)
	(&SellerHandler{Query: query, Sellers: sellerSvc, Sessions: sessions, Log: log}).Register(r)
	return &app{router: r, gw: gw, store: store, sellers: dest}
}

func (a *app) do(t *testing.T, method, path, sid string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sid != "" {
		req.Header.Set(SessionHeader, sid)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *app) login(t *testing.T, account string, role session.Role) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var s session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	if account != "" {
		rec = a.do(t, http.MethodPost, "/sessions/login", s.ID, loginReq{AccountID: account, Role: role},
			OperatorKeyHeader, operatorKey)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return s.ID
}

func shipping() orders.ShippingInfo {
	return orders.ShippingInfo{
		FirstName: "Ada", LastName: "Obi", Email: "ada@example.com", Phone: "+2348000000000",
		Address: "1 Marina", City: "Lagos", State: "Lagos", Country: "NG",
	}
}

// placeOrder fills and syncs the buyer's cart, then checks out on delivery.
func (a *app) placeOrder(t *testing.T, sid string) *orders.Order {
	t.Helper()
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/cart/items", sid, addItemReq{ProductID: "productA", Quantity: 2}).Code)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/cart/items", sid, addItemReq{ProductID: "productB", Quantity: 1}).Code)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/cart/sync", sid, nil).Code)
	rec := a.do(t, http.MethodPost, "/checkout", sid, checkoutReq{Shipping: shipping(), Method: orders.MethodPayOnDelivery})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res checkout.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Order
}

func TestHealthz(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

func TestSessionRequired(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/cart", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/cart", "missing", nil).Code)

	sid := a.login(t, "", "")
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/cart", sid, nil).Code)
	// guests may shop but not check out
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/checkout", sid, checkoutReq{}).Code)

	rec := a.do(t, http.MethodPost, "/sessions/login", sid, loginReq{AccountID: "u1", Role: "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// operator is never self-assigned
	op := loginReq{AccountID: "u1", Role: session.RoleOperator}
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/sessions/login", sid, op).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/sessions/login", sid, op, OperatorKeyHeader, "guess").Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/admin/orders/x/settlement/retry", sid, nil).Code)
	assert.False(t, (&SessionHandler{}).operatorKeyOK(""))

	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/sessions", sid, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/cart", sid, nil).Code)
}

func TestCartEndpoints(t *testing.T) {
	a := newApp(t)
	sid := a.login(t, "", "")

	rec := a.do(t, http.MethodPost, "/cart/items", sid, addItemReq{ProductID: "productA", Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/cart/items", sid, addItemReq{ProductID: "nope", Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/cart/items", sid, addItemReq{ProductID: "productA", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodPost, "/cart/items/productA/decrease", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c cart.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)

	rec = a.do(t, http.MethodDelete, "/cart/items/productA", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Empty(t, c.Items)

	rec = a.do(t, http.MethodGet, "/products?seller_id=seller-y", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ps []catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ps))
	require.Len(t, ps, 1)
	assert.Equal(t, "productB", ps[0].ID)
}

func TestCheckout_RequiresSyncAndReplays(t *testing.T) {
	a := newApp(t)
	sid := a.login(t, "buyer-1", session.RoleBuyer)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/cart/items", sid, addItemReq{ProductID: "productA", Quantity: 2}).Code)

	body := checkoutReq{Shipping: shipping(), Method: orders.MethodPayOnDelivery}
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(t, http.MethodPost, "/checkout", sid, body).Code)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/cart/sync", sid, nil).Code)
	bad := checkoutReq{Shipping: orders.ShippingInfo{FirstName: "Ada"}, Method: orders.MethodPayOnDelivery}
	rec := a.do(t, http.MethodPost, "/checkout", sid, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var eb errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	assert.Contains(t, eb.Fields, "email")

	rec = a.do(t, http.MethodPost, "/checkout", sid, body, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first checkout.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, orders.StatusHold, first.Order.PaymentStatus)

	rec = a.do(t, http.MethodPost, "/checkout", sid, body, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, rec.Code)
	var again checkout.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Order.ID, again.Order.ID)

	rec = a.do(t, http.MethodGet, "/orders", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestOrderVisibility(t *testing.T) {
	a := newApp(t)
	buyer := a.login(t, "buyer-1", session.RoleBuyer)
	o := a.placeOrder(t, buyer)

	rec := a.do(t, http.MethodGet, "/orders/"+o.ID+"/status", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cs redisx.CachedStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cs))
	assert.Equal(t, "hold", cs.PaymentStatus)

	other := a.login(t, "buyer-2", session.RoleBuyer)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/orders/"+o.ID, other, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/orders/"+o.ID+"/status", other, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/orders/nope", buyer, nil).Code)

	seller := a.login(t, "seller-y", session.RoleSeller)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/orders/"+o.ID, seller, nil).Code)
	rec = a.do(t, http.MethodGet, "/seller/orders/"+o.ID, seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v orders.SellerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.Len(t, v.Items, 1)
	assert.Equal(t, "productB", v.Items[0].ProductID)
	assert.Equal(t, money.New(500, "NGN"), v.Subtotal)

	rec = a.do(t, http.MethodGet, "/seller/orders?search=obi", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []orders.SellerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 1)

	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/seller/stats", buyer, nil).Code)

	op := a.login(t, "ops-1", session.RoleOperator)
	rec = a.do(t, http.MethodGet, "/orders/"+o.ID, op, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestConfirmDelivery_Settles(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	require.NoError(t, a.sellers.SavePayoutDestination(ctx, "seller-x", destX))
	require.NoError(t, a.sellers.SavePayoutDestination(ctx, "seller-y", destY))
	a.gw.On("Disburse", mock.Anything, mock.Anything).Return(gateway.Transfer{TransferID: "TRF"}, nil)

	buyer := a.login(t, "buyer-1", session.RoleBuyer)
	o := a.placeOrder(t, buyer)

	other := a.login(t, "buyer-2", session.RoleBuyer)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm-delivery", other, nil).Code)

	rec := a.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm-delivery", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep settlement.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, orders.StatusPaid, rep.Order.PaymentStatus)
	assert.Equal(t, orders.SettlementDone, rep.Order.SettlementStatus)
	assert.Len(t, rep.Results, 2)

	// a second confirmation is a conflict, not a second payout
	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm-delivery", buyer, nil).Code)
	a.gw.AssertNumberOfCalls(t, "Disburse", 2)

	seller := a.login(t, "seller-x", session.RoleSeller)
	rec = a.do(t, http.MethodGet, "/seller/stats", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st orders.SellerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.TotalOrders)
}

func TestConfirmDelivery_PartialThenOperatorRetry(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	require.NoError(t, a.sellers.SavePayoutDestination(ctx, "seller-x", destX))
	a.gw.On("Disburse", mock.Anything, mock.Anything).Return(gateway.Transfer{TransferID: "TRF"}, nil)

	buyer := a.login(t, "buyer-1", session.RoleBuyer)
	o := a.placeOrder(t, buyer)

	rec := a.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm-delivery", buyer, nil)
	require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())
	var rep settlement.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, orders.SettlementPartial, rep.Order.SettlementStatus)
	assert.Nil(t, rep.Order.SellerPaidAt)

	retry := "/admin/orders/" + o.ID + "/settlement/retry"
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, retry, buyer, nil).Code)

	require.NoError(t, a.sellers.SavePayoutDestination(ctx, "seller-y", destY))
	op := a.login(t, "ops-1", session.RoleOperator)
	rec = a.do(t, http.MethodPost, retry, op, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, orders.SettlementDone, rep.Order.SettlementStatus)
	assert.NotNil(t, rep.Order.SellerPaidAt)
}

func TestSellerPayoutSetup(t *testing.T) {
	a := newApp(t)
	a.gw.On("ResolveAccountName", mock.Anything, "0123456789", "058").Return("X Ltd", nil)
	a.gw.On("ListBanks", mock.Anything, "NGN").Return([]gateway.Bank{{Code: "058", Name: "GTBank"}}, nil).Once()
	seller := a.login(t, "seller-x", session.RoleSeller)

	rec := a.do(t, http.MethodPost, "/seller/payout/verify-account", seller, accountReq{AccountNumber: "123", BankCode: "058"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/seller/payout/setup", seller, accountReq{AccountNumber: "0123456789", BankCode: "058"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := a.sellers.GetPayoutDestination(context.Background(), "seller-x")
	require.NoError(t, err)
	assert.Equal(t, destX, got)

	for i := 0; i < 2; i++ {
		rec = a.do(t, http.MethodGet, "/seller/banks", seller, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	a.gw.AssertNumberOfCalls(t, "ListBanks", 1)
}
