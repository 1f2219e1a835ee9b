package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGServerStore keeps authoritative carts as a JSONB item list per owner.
type PGServerStore struct{ DB *pgxpool.Pool }

func (s *PGServerStore) Get(ctx context.Context, owner string) (*Cart, error) {
	c := &Cart{Owner: owner}
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT items, last_synced_at, updated_at FROM carts WHERE owner_key=$1`, owner).
		Scan(&raw, &c.LastSyncedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", owner, err)
	}
	return c, nil
}

func (s *PGServerStore) Put(ctx context.Context, c *Cart) error {
	items := c.Items
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO carts(owner_key, items, last_synced_at, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (owner_key) DO UPDATE
		SET items=EXCLUDED.items, last_synced_at=EXCLUDED.last_synced_at, updated_at=EXCLUDED.updated_at`,
		c.Owner, raw, c.LastSyncedAt, c.UpdatedAt)
	return err
}

func (s *PGServerStore) Delete(ctx context.Context, owner string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM carts WHERE owner_key=$1`, owner)
	return err
}
