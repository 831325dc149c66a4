// Package memstore provides an in-memory leave.Store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	users    map[string]leave.User
	requests map[string]leave.Request
	audit    []leave.AuditEntry
}

func New() *Memory {
	return &Memory{
		users:    make(map[string]leave.User),
		requests: make(map[string]leave.Request),
	}
}

func (m *Memory) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) getRequestLocked(id string) (*leave.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, &leave.NotFoundError{Kind: "leave request", ID: id}
	}
	return &r, nil
}

func (m *Memory) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.RequestView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]leave.RequestView, 0)
	for _, r := range m.requests {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && !f.To.IsZero() && !r.Covers(f.From, f.To) {
			continue
		}
		v := leave.RequestView{Request: r}
		if u, ok := m.users[r.UserID]; ok {
			v.UserName, v.UserEmail = u.Name, u.Email
		}
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Memory) getUserLocked(id string) (*leave.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, &leave.NotFoundError{Kind: "user", ID: id}
	}
	return &u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, &leave.NotFoundError{Kind: "user", ID: email}
}

func (m *Memory) ListUsers(_ context.Context) ([]leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]leave.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) CreateUser(_ context.Context, u leave.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, leave.ErrConflict)
	}
	if err := m.checkEmailLocked(u.ID, u.Email); err != nil {
		return err
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) checkEmailLocked(id, email string) error {
	for _, other := range m.users {
		if other.ID != id && other.Email == email {
			return fmt.Errorf("email %s already registered: %w", email, leave.ErrConflict)
		}
	}
	return nil
}

func (m *Memory) ListAudit(_ context.Context, requestID string) ([]leave.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []leave.AuditEntry
	for _, e := range m.audit {
		if e.RequestID == requestID {
			result = append(result, e)
		}
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are fully serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users    map[string]leave.User
	requests map[string]leave.Request
	audit    []leave.AuditEntry
}

func (m *Memory) snapshot() memorySnapshot {
	users := make(map[string]leave.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	requests := make(map[string]leave.Request, len(m.requests))
	for k, v := range m.requests {
		requests[k] = v
	}
	return memorySnapshot{
		users:    users,
		requests: requests,
		audit:    append([]leave.AuditEntry(nil), m.audit...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.requests = s.requests
	m.audit = s.audit
}

// txView runs with parent.mu held for writing.
type txView struct {
	parent *Memory
}

func (tv *txView) LockUser(_ context.Context, id string) (*leave.User, error) {
	return tv.parent.getUserLocked(id)
}

func (tv *txView) UpdateUser(_ context.Context, u leave.User) error {
	if _, ok := tv.parent.users[u.ID]; !ok {
		return &leave.NotFoundError{Kind: "user", ID: u.ID}
	}
	if err := tv.parent.checkEmailLocked(u.ID, u.Email); err != nil {
		return err
	}
	tv.parent.users[u.ID] = u
	return nil
}

func (tv *txView) DeleteUser(_ context.Context, id string) error {
	if _, ok := tv.parent.users[id]; !ok {
		return &leave.NotFoundError{Kind: "user", ID: id}
	}
	delete(tv.parent.users, id)
	for rid, r := range tv.parent.requests {
		if r.UserID == id {
			delete(tv.parent.requests, rid)
		}
	}
	kept := tv.parent.audit[:0:0]
	for _, e := range tv.parent.audit {
		if e.UserID != id {
			kept = append(kept, e)
		}
	}
	tv.parent.audit = kept
	return nil
}

func (tv *txView) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txView) InsertRequest(_ context.Context, r leave.Request) error {
	if _, ok := tv.parent.requests[r.ID]; ok {
		return fmt.Errorf("leave request %s: %w", r.ID, leave.ErrConflict)
	}
	if _, ok := tv.parent.users[r.UserID]; !ok {
		return &leave.NotFoundError{Kind: "user", ID: r.UserID}
	}
	tv.parent.requests[r.ID] = r
	return nil
}

func (tv *txView) UpdateRequestStatus(_ context.Context, id string, status leave.Status, at time.Time) error {
	r, ok := tv.parent.requests[id]
	if !ok {
		return &leave.NotFoundError{Kind: "leave request", ID: id}
	}
	r.Status = status
	r.UpdatedAt = at
	tv.parent.requests[id] = r
	return nil
}

func (tv *txView) DeleteRequest(_ context.Context, id string) error {
	if _, ok := tv.parent.requests[id]; !ok {
		return &leave.NotFoundError{Kind: "leave request", ID: id}
	}
	delete(tv.parent.requests, id)
	return nil
}

func (tv *txView) AppendAudit(_ context.Context, e leave.AuditEntry) error {
	tv.parent.audit = append(tv.parent.audit, e)
	return nil
}
