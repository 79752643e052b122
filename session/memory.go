package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type lineageHistory struct {
	hashes      map[string]time.Time
	retainUntil time.Time
}

// MemoryStore is a process-local Store. A single mutex makes every
// operation, including AdvanceLineage, atomic.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	retention time.Duration
	rows      map[string]*Row
	history   map[string]*lineageHistory
}

// NewMemoryStore returns an empty store. historyRetention is how long lineage
// history survives past the session's last expiry; now may be nil.
func NewMemoryStore(now func() time.Time, historyRetention time.Duration) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:       now,
		retention: historyRetention,
		rows:      make(map[string]*Row),
		history:   make(map[string]*lineageHistory),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.rows[row.Handle]; ok && m.now().Before(existing.ExpiresAt) {
		return ErrDuplicateHandle
	}
	m.rows[row.Handle] = row.clone()
	m.recordLocked(row.Handle, row.LineageHash, row.ExpiresAt)
	return nil
}

func (m *MemoryStore) recordLocked(handle, hash string, expiresAt time.Time) {
	h, ok := m.history[handle]
	if !ok {
		h = &lineageHistory{hashes: make(map[string]time.Time)}
		m.history[handle] = h
	}
	h.hashes[hash] = m.now()
	h.retainUntil = expiresAt.Add(m.retention)
}

// liveLocked returns the row for handle if it exists and has not expired.
func (m *MemoryStore) liveLocked(handle string) (*Row, bool) {
	row, ok := m.rows[handle]
	if !ok {
		return nil, false
	}
	if !m.now().Before(row.ExpiresAt) {
		delete(m.rows, handle)
		return nil, false
	}
	return row, true
}

func (m *MemoryStore) GetSession(_ context.Context, handle string) (*Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.liveLocked(handle)
	if !ok {
		return nil, ErrNotFound
	}
	return row.clone(), nil
}

func (m *MemoryStore) AdvanceLineage(_ context.Context, handle, expectedHash, nextHash string, nextExpiry time.Time) (AdvanceResult, *Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.liveLocked(handle)
	if !ok {
		return NotFound, nil, nil
	}
	if row.LineageHash != expectedHash {
		return Mismatch, nil, nil
	}
	row.LineageHash = nextHash
	row.ExpiresAt = nextExpiry
	m.recordLocked(handle, nextHash, nextExpiry)
	return Advanced, row.clone(), nil
}

func (m *MemoryStore) IsLineageHistorical(_ context.Context, handle, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.history[handle]
	if !ok {
		return false, nil
	}
	_, seen := h.hashes[hash]
	return seen, nil
}

func (m *MemoryStore) UpdatePayload(_ context.Context, handle string, jwtPayload, dbPayload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.liveLocked(handle)
	if !ok {
		return ErrNotFound
	}
	if jwtPayload != nil {
		row.JWTPayload = cloneRaw(jwtPayload)
	}
	if dbPayload != nil {
		row.DBPayload = cloneRaw(dbPayload)
	}
	return nil
}

func (m *MemoryStore) Revoke(_ context.Context, handles ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	revoked := 0
	for _, handle := range handles {
		if _, ok := m.liveLocked(handle); ok {
			delete(m.rows, handle)
			revoked++
		}
	}
	return revoked, nil
}

func (m *MemoryStore) HandlesForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var handles []string
	for handle, row := range m.rows {
		if row.UserID != userID {
			continue
		}
		if _, ok := m.liveLocked(handle); ok {
			handles = append(handles, handle)
		}
	}
	return handles, nil
}

func (m *MemoryStore) SessionCount(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for handle := range m.rows {
		if _, ok := m.liveLocked(handle); ok {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) HistoricalCount(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, h := range m.history {
		count += len(h.hashes)
	}
	return count, nil
}

// Sweep drops expired rows and lineage history past its retention. It
// returns the number of history sets purged.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for handle, row := range m.rows {
		if !now.Before(row.ExpiresAt) {
			delete(m.rows, handle)
		}
	}
	purged := 0
	for handle, h := range m.history {
		if _, live := m.rows[handle]; live {
			continue
		}
		if !now.Before(h.retainUntil) {
			delete(m.history, handle)
			purged++
		}
	}
	return purged
}
