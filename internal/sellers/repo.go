package sellers

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnknownSeller = errors.New("unknown seller")

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetPayoutDestination(ctx context.Context, sellerID string) (gateway.Destination, error) {
	var bank, number, name *string
	err := r.DB.QueryRow(ctx, `
		SELECT payout_bank_code, payout_account_number, payout_account_name
		FROM sellers WHERE id=$1`, sellerID).Scan(&bank, &number, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return gateway.Destination{}, ErrUnknownSeller
	}
	if err != nil {
		return gateway.Destination{}, err
	}
	if bank == nil || number == nil || *bank == "" || *number == "" {
		return gateway.Destination{}, ErrNoPayoutDestination
	}
	d := gateway.Destination{BankCode: *bank, AccountNumber: *number}
	if name != nil {
		d.AccountName = *name
	}
	return d, nil
}

func (r *Repo) SavePayoutDestination(ctx context.Context, sellerID string, d gateway.Destination) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE sellers
		SET payout_bank_code=$2, payout_account_number=$3, payout_account_name=$4, updated_at=now()
		WHERE id=$1`, sellerID, d.BankCode, d.AccountNumber, d.AccountName)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrUnknownSeller
	}
	return nil
}
