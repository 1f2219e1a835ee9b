package gatewaytest

import (
	"context"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/stretchr/testify/mock"
)

// Gateway is a testify mock of gateway.Gateway.
type Gateway struct{ mock.Mock }

func (m *Gateway) Authorize(ctx context.Context, req gateway.AuthorizeRequest) (gateway.Authorization, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Authorization), args.Error(1)
}

func (m *Gateway) Verify(ctx context.Context, reference string) (gateway.Verification, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(gateway.Verification), args.Error(1)
}

func (m *Gateway) Disburse(ctx context.Context, p gateway.Payout) (gateway.Transfer, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(gateway.Transfer), args.Error(1)
}

func (m *Gateway) ResolveAccountName(ctx context.Context, accountNumber, bankCode string) (string, error) {
	args := m.Called(ctx, accountNumber, bankCode)
	return args.String(0), args.Error(1)
}

func (m *Gateway) ListBanks(ctx context.Context, currency string) ([]gateway.Bank, error) {
	args := m.Called(ctx, currency)
	banks, _ := args.Get(0).([]gateway.Bank)
	return banks, args.Error(1)
}
