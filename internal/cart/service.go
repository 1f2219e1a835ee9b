package cart

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"time"
)

// ErrNotSynced means checkout was attempted without a successful sync of a non-empty cart.
var ErrNotSynced = errors.New("cart is not synced")

// SyncError is a failed reconciliation. The caller must not proceed to checkout.
type SyncError struct {
	Owner string
	Err   error
}

func (e *SyncError) Error() string { return fmt.Sprintf("cart sync for %s: %v", e.Owner, e.Err) }

func (e *SyncError) Unwrap() error { return e.Err }

// Adjustment records what the authority changed relative to the submitted cart.
type Adjustment struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

const (
	AdjustRemoved  = "removed"
	AdjustRepriced = "repriced"
)

// Authority is the server side of sync: it re-resolves every submitted item against the
// catalog and stores the result as the owner's cart.
type Authority struct {
	Catalog  catalog.Lookup
	Store    ServerStore
	Currency string
	Now      func() time.Time
}

func (a *Authority) Reconcile(ctx context.Context, owner string, items []Item) (*Cart, []Adjustment, error) {
	now := time.Now().UTC()
	if a.Now != nil {
		now = a.Now().UTC()
	}
	out := &Cart{Owner: owner, UpdatedAt: now, LastSyncedAt: &now}
	var adj []Adjustment

	for _, it := range items {
		if !validQuantity(it.Quantity) {
			return nil, nil, &orders.ValidationError{Msg: "invalid quantity", Fields: []string{it.ProductID}, Err: ErrInvalidQuantity}
		}
		p, err := a.Catalog.Get(ctx, it.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			adj = append(adj, Adjustment{ProductID: it.ProductID, Reason: AdjustRemoved})
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if !p.Available || p.Price.Currency != a.Currency {
			adj = append(adj, Adjustment{ProductID: it.ProductID, Reason: AdjustRemoved})
			continue
		}
		if p.Price != it.UnitPrice {
			adj = append(adj, Adjustment{ProductID: it.ProductID, Reason: AdjustRepriced})
		}
		// duplicates were already merged client side; AddItem merges any that slipped through
		if err := out.AddItem(Item{ProductID: p.ID, SellerID: p.SellerID, Title: p.Title, Quantity: it.Quantity, UnitPrice: p.Price}); err != nil {
			return nil, nil, err
		}
	}

	if err := a.Store.Put(ctx, out); err != nil {
		return nil, nil, err
	}
	return out, adj, nil
}

// Service edits the session's local cart and syncs it. Concurrent syncs for one owner
// resolve as last-sync-wins.
type Service struct {
	Local     LocalStore
	Server    ServerStore
	Authority *Authority
	Catalog   catalog.Lookup
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) Get(ctx context.Context, sess *session.Session) (*Cart, error) {
	c, err := s.Local.Load(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	c.Owner = sess.Owner()
	return c, nil
}

func (s *Service) mutate(ctx context.Context, sess *session.Session, fn func(*Cart) error) (*Cart, error) {
	c, err := s.Get(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.Local.Save(ctx, sess.ID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Add snapshots the product's current price and seller into the local cart.
func (s *Service) Add(ctx context.Context, sess *session.Session, productID string, qty int) (*Cart, error) {
	if !validQuantity(qty) {
		return nil, &orders.ValidationError{Msg: "invalid quantity", Fields: []string{productID}, Err: ErrInvalidQuantity}
	}
	p, err := s.Catalog.Get(ctx, productID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, &orders.ValidationError{Msg: "unknown product", Fields: []string{productID}, Err: err}
	}
	if err != nil {
		return nil, err
	}
	if !p.Available {
		return nil, &orders.ValidationError{Msg: "product unavailable", Fields: []string{productID}}
	}
	return s.mutate(ctx, sess, func(c *Cart) error {
		return c.AddItem(Item{ProductID: p.ID, SellerID: p.SellerID, Title: p.Title, Quantity: qty, UnitPrice: p.Price})
	})
}

func (s *Service) Decrease(ctx context.Context, sess *session.Session, productID string) (*Cart, error) {
	return s.mutate(ctx, sess, func(c *Cart) error {
		c.DecreaseQuantity(productID)
		return nil
	})
}

func (s *Service) Remove(ctx context.Context, sess *session.Session, productID string) (*Cart, error) {
	return s.mutate(ctx, sess, func(c *Cart) error {
		c.RemoveItem(productID)
		return nil
	})
}

// Clear destroys both copies of the cart.
func (s *Service) Clear(ctx context.Context, sess *session.Session) error {
	if err := s.Local.Delete(ctx, sess.ID); err != nil {
		return err
	}
	return s.Server.Delete(ctx, sess.Owner())
}

// Sync sends the whole local cart to the authority and replaces local state with its answer.
func (s *Service) Sync(ctx context.Context, sess *session.Session) (*Cart, []Adjustment, error) {
	local, err := s.Get(ctx, sess)
	if err != nil {
		return nil, nil, &SyncError{Owner: sess.Owner(), Err: err}
	}
	c, adj, err := s.Authority.Reconcile(ctx, sess.Owner(), local.Items)
	if err != nil {
		return nil, nil, &SyncError{Owner: sess.Owner(), Err: err}
	}
	if err := s.Local.Save(ctx, sess.ID, c); err != nil {
		return nil, nil, &SyncError{Owner: sess.Owner(), Err: err}
	}
	return c, adj, nil
}

// Synced returns the owner's server cart. It fails with ErrNotSynced when the cart was never
// synced, is empty, or the local copy was edited after the last sync.
func (s *Service) Synced(ctx context.Context, sess *session.Session) (*Cart, error) {
	c, err := s.Server.Get(ctx, sess.Owner())
	if err != nil {
		return nil, err
	}
	if c.LastSyncedAt == nil || c.Empty() {
		return nil, ErrNotSynced
	}
	local, err := s.Local.Load(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if local.UpdatedAt.After(*c.LastSyncedAt) {
		return nil, ErrNotSynced
	}
	return c, nil
}
