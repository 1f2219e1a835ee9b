package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
)

// ErrTimeout covers every retryable gateway failure: deadlines, rate limits, 5xx.
var ErrTimeout = errors.New("gateway timeout")

// RejectedError is a definitive refusal (declined card, invalid account). Never retried.
type RejectedError struct {
	Op     string
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway rejected %s (%s): %s", e.Op, e.Code, e.Reason)
	}
	return fmt.Sprintf("gateway rejected %s: %s", e.Op, e.Reason)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

type ChargeStatus string

const (
	ChargeSuccess   ChargeStatus = "success"
	ChargePending   ChargeStatus = "pending"
	ChargeFailed    ChargeStatus = "failed"
	ChargeAbandoned ChargeStatus = "abandoned"
)

// Definitive reports whether the status is final and unsuccessful.
func (s ChargeStatus) Definitive() bool { return s == ChargeFailed || s == ChargeAbandoned }

type AuthorizeRequest struct {
	Reference   string
	Amount      money.Money
	Method      string
	Email       string
	CallbackURL string
}

// Authorization carries either a redirect URL or an immediate result.
type Authorization struct {
	Reference        string
	AuthorizationURL string
	Status           ChargeStatus
}

type Verification struct {
	Reference string
	Status    ChargeStatus
	Amount    money.Money
	Raw       json.RawMessage
}

type Destination struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type Payout struct {
	Destination Destination
	Amount      money.Money
	Reference   string
	Reason      string
}

type Transfer struct {
	Reference  string
	TransferID string
	Status     string
}

type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Gateway is the payment processor boundary. Every call may fail with ErrTimeout or *RejectedError.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error)
	Verify(ctx context.Context, reference string) (Verification, error)
	Disburse(ctx context.Context, p Payout) (Transfer, error)
	ResolveAccountName(ctx context.Context, accountNumber, bankCode string) (string, error)
	ListBanks(ctx context.Context, currency string) ([]Bank, error)
}
