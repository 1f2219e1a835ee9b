package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"strings"
	"time"
)

// PGStore keeps orders in postgres. Amounts are bigint minor units.
type PGStore struct{ DB *pgxpool.Pool }

const orderColumns = `id, buyer_id, shipping, payment_status, payment_method, settlement_status,
	currency, total_amount, COALESCE(gateway_ref, ''), failure_reason, version,
	created_at, updated_at, payment_confirmed_at, delivered_at, seller_paid_at`

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, shipping, payment_status, payment_method, settlement_status,
			currency, total_amount, gateway_ref, failure_reason, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$11,$12,$13)`,
		o.ID, o.BuyerID, shipping, o.PaymentStatus, o.PaymentMethod, o.SettlementStatus,
		o.Total.Currency, o.Total.Amount, o.GatewayRef, o.FailureReason, o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(order_id, line_no, product_id, seller_id, title, quantity, unit_price, currency)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, i, it.ProductID, it.SellerID, it.Title, it.Quantity, it.UnitPrice.Amount, it.UnitPrice.Currency)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Get(ctx context.Context, id string) (*Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	out, err := s.collect(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

// Update writes the mutable status/timestamp fields only; items and totals are never rewritten.
func (s *PGStore) Update(ctx context.Context, o *Order, expectedVersion int) error {
	ct, err := s.DB.Exec(ctx, updateSQL, updateArgs(o, expectedVersion)...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrVersionConflict
	}
	o.Version = expectedVersion + 1
	return nil
}

const updateSQL = `
	UPDATE orders SET payment_status=$3, settlement_status=$4, failure_reason=$5,
		payment_confirmed_at=$6, delivered_at=$7, seller_paid_at=$8, updated_at=$9,
		version=version+1
	WHERE id=$1 AND version=$2`

func updateArgs(o *Order, expectedVersion int) []any {
	return []any{o.ID, expectedVersion, o.PaymentStatus, o.SettlementStatus, o.FailureReason,
		o.PaymentConfirmedAt, o.DeliveredAt, o.SellerPaidAt, o.UpdatedAt}
}

func (s *PGStore) ListByBuyer(ctx context.Context, buyerID string, page Page) ([]*Order, error) {
	page = page.normalize()
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_id=$1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, buyerID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

func (s *PGStore) ListBySeller(ctx context.Context, sellerID string, f SellerFilter) ([]*Order, error) {
	page := f.page()
	search := likePattern(strings.TrimSpace(f.Search))
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE id IN (SELECT order_id FROM order_items WHERE seller_id=$1)
			AND ($2::text = '' OR payment_status = $2::text)
			AND ($3::text = '%%' OR id::text ILIKE $3 OR shipping->>'first_name' ILIKE $3
				OR shipping->>'last_name' ILIKE $3 OR shipping->>'email' ILIKE $3)
		ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5`,
		sellerID, string(f.Status), search, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

// likePattern wraps term for a substring ILIKE match, escaping its wildcards.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func (s *PGStore) SellerTotals(ctx context.Context, sellerID string) ([]SellerTotal, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT o.payment_status, MIN(o.currency), COUNT(DISTINCT o.id),
			COALESCE(SUM(i.quantity::bigint * i.unit_price), 0)::bigint
		FROM orders o JOIN order_items i ON i.order_id = o.id
		WHERE i.seller_id = $1
		GROUP BY o.payment_status`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SellerTotal
	for rows.Next() {
		var (
			t        SellerTotal
			status   string
			currency string
			amount   int64
		)
		if err := rows.Scan(&status, &currency, &t.Orders, &amount); err != nil {
			return nil, err
		}
		t.Status = Status(status)
		t.Subtotal = money.New(amount, currency)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]*Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE payment_status='pending' AND created_at < $1
		ORDER BY created_at LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

func (s *PGStore) ListUnsettled(ctx context.Context, limit int) ([]*Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE payment_status='paid' AND seller_paid_at IS NULL
		ORDER BY updated_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

// BeginSettlement commits hold -> paid and the settlement records together.
func (s *PGStore) BeginSettlement(ctx context.Context, o *Order, expectedVersion int, recs []SettlementRecord) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, updateSQL, updateArgs(o, expectedVersion)...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrVersionConflict
	}
	for _, r := range recs {
		_, err := tx.Exec(ctx, `
			INSERT INTO settlements(order_id, seller_id, currency, gross_amount, fee_amount, payable_amount,
				status, reference, attempts, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			r.OrderID, r.SellerID, r.Payable.Currency, r.Gross.Amount, r.Fee.Amount, r.Payable.Amount,
			r.Status, r.Reference, r.Attempts, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrVersionConflict
			}
			return fmt.Errorf("insert settlement: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.Version = expectedVersion + 1
	return nil
}

func (s *PGStore) Settlements(ctx context.Context, orderID string) ([]SettlementRecord, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT order_id, seller_id, currency, gross_amount, fee_amount, payable_amount, status, reference,
			COALESCE(transfer_id, ''), reason, attempts, created_at, updated_at, paid_at
		FROM settlements WHERE order_id=$1 ORDER BY seller_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SettlementRecord
	for rows.Next() {
		var (
			r                   SettlementRecord
			cur                 string
			gross, fee, payable int64
		)
		if err := rows.Scan(&r.OrderID, &r.SellerID, &cur, &gross, &fee, &payable, &r.Status, &r.Reference,
			&r.TransferID, &r.Reason, &r.Attempts, &r.CreatedAt, &r.UpdatedAt, &r.PaidAt); err != nil {
			return nil, err
		}
		r.Gross, r.Fee, r.Payable = money.New(gross, cur), money.New(fee, cur), money.New(payable, cur)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateSettlement(ctx context.Context, r SettlementRecord, from ...PayoutStatus) error {
	allowed := make([]string, len(from))
	for i, f := range from {
		allowed[i] = string(f)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE settlements SET status=$3, transfer_id=NULLIF($4,''), reason=$5, attempts=$6,
			updated_at=$7, paid_at=$8
		WHERE order_id=$1 AND seller_id=$2 AND status = ANY($9)`,
		r.OrderID, r.SellerID, r.Status, r.TransferID, r.Reason, r.Attempts, r.UpdatedAt, r.PaidAt, allowed)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrVersionConflict
	}
	return nil
}

func (s *PGStore) collect(ctx context.Context, rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()

	var (
		out  []*Order
		ids  []string
		byID = map[string]*Order{}
	)
	for rows.Next() {
		var (
			o        Order
			shipping []byte
			cur      string
			total    int64
		)
		if err := rows.Scan(&o.ID, &o.BuyerID, &shipping, &o.PaymentStatus, &o.PaymentMethod, &o.SettlementStatus,
			&cur, &total, &o.GatewayRef, &o.FailureReason, &o.Version,
			&o.CreatedAt, &o.UpdatedAt, &o.PaymentConfirmedAt, &o.DeliveredAt, &o.SellerPaidAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
			return nil, fmt.Errorf("decode shipping for %s: %w", o.ID, err)
		}
		o.Total = money.New(total, cur)
		out = append(out, &o)
		ids = append(ids, o.ID)
		byID[o.ID] = &o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	items, err := s.DB.Query(ctx, `
		SELECT order_id, product_id, seller_id, title, quantity, unit_price, currency
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, err
	}
	defer items.Close()
	for items.Next() {
		var (
			orderID, cur string
			price        int64
			it           LineItem
		)
		if err := items.Scan(&orderID, &it.ProductID, &it.SellerID, &it.Title, &it.Quantity, &price, &cur); err != nil {
			return nil, err
		}
		it.UnitPrice = money.New(price, cur)
		if o := byID[orderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return out, items.Err()
}
