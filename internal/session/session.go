package session

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"time"
)

type Role string

const (
	RoleGuest    Role = "guest"
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleOperator Role = "operator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleBuyer, RoleSeller, RoleOperator:
		return true
	}
	return false
}

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidRole = errors.New("invalid session role")
)

// Session replaces ambient client storage: every request names its session explicitly.
type Session struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id,omitempty"`
	Role          Role       `json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
}

func (s *Session) Authenticated() bool { return s.AccountID != "" }

// Owner keys carts: the account once bound, the session itself for guests.
func (s *Session) Owner() string {
	if s.AccountID != "" {
		return "acct:" + s.AccountID
	}
	return "sess:" + s.ID
}

func (s *Session) active(now time.Time) bool {
	return s.InvalidatedAt == nil && now.Before(s.ExpiresAt)
}

type Store struct {
	Redis *redis.Client
	TTL   time.Duration
	Now   func() time.Time
}

func (st *Store) now() time.Time {
	if st.Now != nil {
		return st.Now().UTC()
	}
	return time.Now().UTC()
}

// Start opens a guest session.
func (st *Store) Start(ctx context.Context) (*Session, error) {
	now := st.now()
	s := &Session{
		ID:        uuid.NewString(),
		Role:      RoleGuest,
		CreatedAt: now,
		ExpiresAt: now.Add(st.TTL),
	}
	if err := st.save(ctx, s, now); err != nil {
		return nil, err
	}
	return s, nil
}

func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	var s Session
	ok, err := redisx.GetJSON(ctx, st.Redis, fmt.Sprintf(redisx.KeySession, id), &s)
	if err != nil {
		return nil, err
	}
	if !ok || !s.active(st.now()) {
		return nil, ErrNotFound
	}
	return &s, nil
}

// Bind attaches an account asserted by the upstream auth service and extends the session.
func (st *Store) Bind(ctx context.Context, id, accountID string, role Role) (*Session, error) {
	if accountID == "" || role == RoleGuest || !role.Valid() {
		return nil, ErrInvalidRole
	}
	s, err := st.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := st.now()
	s.AccountID = accountID
	s.Role = role
	s.ExpiresAt = now.Add(st.TTL)
	if err := st.save(ctx, s, now); err != nil {
		return nil, err
	}
	return s, nil
}

// Invalidate ends the session (logout). Unknown ids are ignored.
func (st *Store) Invalidate(ctx context.Context, id string) error {
	s, err := st.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	now := st.now()
	s.InvalidatedAt = &now
	return st.save(ctx, s, now)
}

func (st *Store) save(ctx context.Context, s *Session, now time.Time) error {
	ttl := s.ExpiresAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := redisx.SetJSON(ctx, st.Redis, fmt.Sprintf(redisx.KeySession, s.ID), s, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
