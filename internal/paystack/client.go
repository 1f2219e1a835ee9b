package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.paystack.co"

// Client talks to a Paystack-compatible API and implements gateway.Gateway.
type Client struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	HTTP        *http.Client
}

func New(baseURL, secretKey, callbackURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		SecretKey:   secretKey,
		CallbackURL: callbackURL,
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func channelsFor(method string) []string {
	switch method {
	case "card":
		return []string{"card"}
	case "bank_transfer":
		return []string{"bank_transfer", "bank"}
	}
	return nil
}

func (c *Client) Authorize(ctx context.Context, req gateway.AuthorizeRequest) (gateway.Authorization, error) {
	callback := req.CallbackURL
	if callback == "" {
		callback = c.CallbackURL
	}
	body := map[string]any{
		"email":        req.Email,
		"amount":       req.Amount.Amount,
		"currency":     req.Amount.Currency,
		"reference":    req.Reference,
		"callback_url": callback,
		"channels":     channelsFor(req.Method),
	}
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return gateway.Authorization{}, err
	}
	ref := data.Reference
	if ref == "" {
		ref = req.Reference
	}
	return gateway.Authorization{Reference: ref, AuthorizationURL: data.AuthorizationURL, Status: gateway.ChargePending}, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (gateway.Verification, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &raw); err != nil {
		return gateway.Verification{}, err
	}
	var data struct {
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return gateway.Verification{}, fmt.Errorf("decode verify: %w", err)
	}
	return gateway.Verification{
		Reference: data.Reference,
		Status:    chargeStatus(data.Status),
		Amount:    money.New(data.Amount, data.Currency),
		Raw:       raw,
	}, nil
}

func chargeStatus(s string) gateway.ChargeStatus {
	switch strings.ToLower(s) {
	case "success":
		return gateway.ChargeSuccess
	case "failed", "reversed":
		return gateway.ChargeFailed
	case "abandoned":
		return gateway.ChargeAbandoned
	}
	return gateway.ChargePending
}

// Disburse creates a transfer recipient for the destination and transfers to it.
// A duplicate reference means an earlier attempt reached the processor; its state is fetched instead.
func (c *Client) Disburse(ctx context.Context, p gateway.Payout) (gateway.Transfer, error) {
	var recipient struct {
		RecipientCode string `json:"recipient_code"`
	}
	err := c.do(ctx, "transfer_recipient", http.MethodPost, "/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           p.Destination.AccountName,
		"account_number": p.Destination.AccountNumber,
		"bank_code":      p.Destination.BankCode,
		"currency":       p.Amount.Currency,
	}, &recipient)
	if err != nil {
		return gateway.Transfer{}, err
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	err = c.do(ctx, "transfer", http.MethodPost, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    p.Amount.Amount,
		"recipient": recipient.RecipientCode,
		"reference": p.Reference,
		"reason":    p.Reason,
	}, &data)
	var rej *gateway.RejectedError
	if errors.As(err, &rej) && strings.Contains(strings.ToLower(rej.Reason), "duplicate") {
		return c.transferStatus(ctx, p.Reference)
	}
	if err != nil {
		return gateway.Transfer{}, err
	}
	return c.transferResult(p.Reference, data.TransferCode, data.Status)
}

func (c *Client) transferStatus(ctx context.Context, reference string) (gateway.Transfer, error) {
	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	if err := c.do(ctx, "transfer_verify", http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return gateway.Transfer{}, err
	}
	return c.transferResult(reference, data.TransferCode, data.Status)
}

func (c *Client) transferResult(reference, code, status string) (gateway.Transfer, error) {
	switch strings.ToLower(status) {
	case "failed", "reversed", "rejected":
		return gateway.Transfer{}, &gateway.RejectedError{Op: "transfer", Code: status, Reason: "transfer " + status}
	}
	return gateway.Transfer{Reference: reference, TransferID: code, Status: status}, nil
}

func (c *Client) ResolveAccountName(ctx context.Context, accountNumber, bankCode string) (string, error) {
	q := url.Values{"account_number": {accountNumber}, "bank_code": {bankCode}}
	var data struct {
		AccountName string `json:"account_name"`
	}
	if err := c.do(ctx, "resolve_account", http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &data); err != nil {
		return "", err
	}
	return data.AccountName, nil
}

func (c *Client) ListBanks(ctx context.Context, currency string) ([]gateway.Bank, error) {
	q := url.Values{"currency": {currency}}
	var banks []gateway.Bank
	if err := c.do(ctx, "list_banks", http.MethodGet, "/bank?"+q.Encode(), nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

// do maps transport failures, 429 and 5xx to gateway.ErrTimeout and any other refusal to *gateway.RejectedError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) || ctx.Err() == nil {
			return fmt.Errorf("%s: %w: %v", op, gateway.ErrTimeout, err)
		}
		return err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s: %w: status %d", op, gateway.ErrTimeout, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &gateway.RejectedError{Op: op, Code: fmt.Sprint(resp.StatusCode), Reason: env.Message}
	case decodeErr != nil:
		return fmt.Errorf("%s: decode response: %w", op, decodeErr)
	case !env.Status:
		return &gateway.RejectedError{Op: op, Reason: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", op, err)
	}
	return nil
}
