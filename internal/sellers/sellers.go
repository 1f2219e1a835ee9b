package sellers

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"strings"
	"sync"
)

// ErrNoPayoutDestination is a permanent payout failure: the seller has not set up bank details.
var ErrNoPayoutDestination = errors.New("seller has no payout destination")

type DestinationStore interface {
	GetPayoutDestination(ctx context.Context, sellerID string) (gateway.Destination, error)
	SavePayoutDestination(ctx context.Context, sellerID string, d gateway.Destination) error
}

// Service is the seller profile boundary for payouts.
type Service struct {
	Store    DestinationStore
	Gateway  gateway.Gateway
	Redis    *redis.Client
	Currency string
}

// GetPayoutDestination is read at settlement time; details may change after an order is placed.
func (s *Service) GetPayoutDestination(ctx context.Context, sellerID string) (gateway.Destination, error) {
	return s.Store.GetPayoutDestination(ctx, sellerID)
}

func validateAccount(accountNumber, bankCode string) error {
	var bad []string
	if len(accountNumber) != 10 || strings.Trim(accountNumber, "0123456789") != "" {
		bad = append(bad, "account_number")
	}
	if strings.TrimSpace(bankCode) == "" {
		bad = append(bad, "bank_code")
	}
	if len(bad) > 0 {
		return &orders.ValidationError{Msg: "invalid bank account", Fields: bad}
	}
	return nil
}

// VerifyAccount resolves the account holder's name without saving anything.
func (s *Service) VerifyAccount(ctx context.Context, accountNumber, bankCode string) (gateway.Destination, error) {
	if err := validateAccount(accountNumber, bankCode); err != nil {
		return gateway.Destination{}, err
	}
	name, err := s.Gateway.ResolveAccountName(ctx, accountNumber, bankCode)
	if err != nil {
		return gateway.Destination{}, fmt.Errorf("resolve account: %w", err)
	}
	return gateway.Destination{BankCode: bankCode, AccountNumber: accountNumber, AccountName: name}, nil
}

// SetupPayout verifies the account through the gateway and stores it as the seller's destination.
func (s *Service) SetupPayout(ctx context.Context, sellerID, accountNumber, bankCode string) (gateway.Destination, error) {
	d, err := s.VerifyAccount(ctx, accountNumber, bankCode)
	if err != nil {
		return gateway.Destination{}, err
	}
	if err := s.Store.SavePayoutDestination(ctx, sellerID, d); err != nil {
		return gateway.Destination{}, err
	}
	return d, nil
}

func (s *Service) ListBanks(ctx context.Context) ([]gateway.Bank, error) {
	key := fmt.Sprintf(redisx.KeyBanks, s.Currency)
	var banks []gateway.Bank
	if s.Redis != nil {
		if ok, err := redisx.GetJSON(ctx, s.Redis, key, &banks); err == nil && ok {
			return banks, nil
		}
	}
	banks, err := s.Gateway.ListBanks(ctx, s.Currency)
	if err != nil {
		return nil, err
	}
	if s.Redis != nil && len(banks) > 0 {
		_ = redisx.SetJSON(ctx, s.Redis, key, banks, redisx.TTLBanks)
	}
	return banks, nil
}

// Memory keeps destinations in process.
type Memory struct {
	mu   sync.RWMutex
	dest map[string]gateway.Destination
}

func NewMemory() *Memory { return &Memory{dest: map[string]gateway.Destination{}} }

func (m *Memory) GetPayoutDestination(_ context.Context, sellerID string) (gateway.Destination, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dest[sellerID]
	if !ok {
		return gateway.Destination{}, ErrNoPayoutDestination
	}
	return d, nil
}

func (m *Memory) SavePayoutDestination(_ context.Context, sellerID string, d gateway.Destination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dest[sellerID] = d
	return nil
}
