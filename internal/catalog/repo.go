package catalog

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `id, seller_id, title, images, price, currency, available`

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Product, error) {
	f.normalize()
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR seller_id = $1)
		ORDER BY title, id LIMIT $2 OFFSET $3`, f.SellerID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p      Product
		amount int64
		cur    string
	)
	if err := row.Scan(&p.ID, &p.SellerID, &p.Title, &p.Images, &amount, &cur, &p.Available); err != nil {
		return Product{}, err
	}
	p.Price = money.New(amount, cur)
	return p, nil
}
