package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/redemption"
)

// Status is the lifecycle of a checkout session.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCommitted Status = "committed"
)

// Session is one in-progress checkout. It owns its cart and redemption slot
// exclusively; nothing else mutates them.
type Session struct {
	ID         string           `json:"id"`
	EmployeeID string           `json:"employeeId"`
	Cart       Cart             `json:"cart"`
	CustomerID string           `json:"customerId,omitempty"`
	UserType   pricing.UserType `json:"userType,omitempty"`
	Redemption redemption.Slot  `json:"redemption"`
	Status     Status           `json:"status"`
	CommitID   string           `json:"commitId,omitempty"`
	SaleID     string           `json:"saleId,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// SessionStore keeps sessions between requests.
type SessionStore interface {
	Get(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}

// RedisSessions stores sessions as JSON with a sliding TTL.
type RedisSessions struct {
	R   *redis.Client
	TTL time.Duration
}

func sessionKey(id string) string { return "checkout:session:" + id }

// Get implements SessionStore.
func (s RedisSessions) Get(ctx context.Context, id string) (Session, error) {
	if s.R == nil {
		return Session{}, errors.New("checkout: redis client not configured")
	}
	raw, err := s.R.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("checkout: decode session %s: %w", id, err)
	}
	return sess, nil
}

// Save implements SessionStore.
func (s RedisSessions) Save(ctx context.Context, sess Session) error {
	if s.R == nil {
		return errors.New("checkout: redis client not configured")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, sessionKey(sess.ID), raw, s.ttl()).Err()
}

// Delete implements SessionStore.
func (s RedisSessions) Delete(ctx context.Context, id string) error {
	if s.R == nil {
		return errors.New("checkout: redis client not configured")
	}
	return s.R.Del(ctx, sessionKey(id)).Err()
}

func (s RedisSessions) ttl() time.Duration {
	if s.TTL <= 0 {
		return 2 * time.Hour
	}
	return s.TTL
}

// MemorySessions keeps sessions in process.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessions returns an empty session store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]Session)}
}

// Get implements SessionStore.
func (m *MemorySessions) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return clone(sess), nil
}

// Save implements SessionStore.
func (m *MemorySessions) Save(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = clone(sess)
	return nil
}

// Delete implements SessionStore.
func (m *MemorySessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func clone(s Session) Session {
	s.Cart.Lines = append([]Line(nil), s.Cart.Lines...)
	if s.Redemption.Current != nil {
		req := *s.Redemption.Current
		s.Redemption.Current = &req
	}
	return s
}
