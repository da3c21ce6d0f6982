package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// Entry is one recorded register action.
type Entry struct {
	ID         string          `json:"id"`
	ActorKind  ActorKind       `json:"actorKind"`
	EmployeeID *string         `json:"employeeId,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID *string         `json:"resourceId,omitempty"`
	Method     string          `json:"method"`
	Path       string          `json:"path"`
	Status     int             `json:"status"`
	IP         *string         `json:"ip,omitempty"`
	UserAgent  *string         `json:"userAgent,omitempty"`
	RequestID  *string         `json:"requestId,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	ListByEmployee(ctx context.Context, employeeID string, limit, offset int) ([]Entry, error)
}

// Memory keeps entries in process.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory returns an empty store.
func NewMemory() *Memory { return &Memory{} }

// Insert implements Store.
func (m *Memory) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// ListByEmployee implements Store, newest first.
func (m *Memory) ListByEmployee(_ context.Context, employeeID string, limit, offset int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Entry{}
	skipped := 0
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		if e.EmployeeID == nil || *e.EmployeeID != employeeID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Postgres stores entries in the audit_log table.
type Postgres struct {
	DB db.DBTX
}

// Insert implements Store.
func (p Postgres) Insert(ctx context.Context, e Entry) error {
	const q = `INSERT INTO audit_log (id, actor_kind, employee_id, action, resource, resource_id,
    method, path, status, ip, user_agent, request_id, metadata, occurred_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	_, err := p.DB.Exec(ctx, q, e.ID, string(e.ActorKind), e.EmployeeID, e.Action, e.Resource, e.ResourceID,
		e.Method, e.Path, e.Status, e.IP, e.UserAgent, e.RequestID, metadata, e.OccurredAt)
	return err
}

// ListByEmployee implements Store, newest first.
func (p Postgres) ListByEmployee(ctx context.Context, employeeID string, limit, offset int) ([]Entry, error) {
	const q = `SELECT id::text, actor_kind, employee_id, action, resource, resource_id, method, path,
    status, ip, user_agent, request_id, metadata, occurred_at
FROM audit_log WHERE employee_id = $1
ORDER BY occurred_at DESC, id LIMIT $2 OFFSET $3`
	rows, err := p.DB.Query(ctx, q, employeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			kind     string
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &kind, &e.EmployeeID, &e.Action, &e.Resource, &e.ResourceID, &e.Method, &e.Path,
			&e.Status, &e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.ActorKind = ActorKind(kind)
		if len(metadata) > 0 {
			e.Metadata = metadata
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
