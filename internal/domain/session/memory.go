package session

import (
	"context"
	"slices"
	"sync"
	"time"
)

// memoryStore keeps sessions in a map. A single mutex serializes writes, which
// makes every conditional operation trivially atomic.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an in-process Store for tests and single-node tools
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]*Session)}
}

func (m *memoryStore) Create(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sess.ID]; exists {
		return errDuplicateID
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id, userID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *memoryStore) Rotate(ctx context.Context, oldID, userID string, next *Session, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.sessions[oldID]
	if !ok || old.UserID != userID || old.Revoked {
		return false, nil
	}
	if _, exists := m.sessions[next.ID]; exists {
		return false, errDuplicateID
	}

	cp := *next
	m.sessions[next.ID] = &cp

	nextID := next.ID
	revokeLocked(old, at)
	old.ReplacedBy = &nextID
	return true, nil
}

func (m *memoryStore) Revoke(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.UserID != userID || sess.Revoked {
		return false, nil
	}
	revokeLocked(sess, at)
	return true, nil
}

func (m *memoryStore) RevokeAll(ctx context.Context, userID string, at time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, sess := range m.sessions {
		if sess.UserID == userID && !sess.Revoked {
			revokeLocked(sess, at)
			ids = append(ids, sess.ID)
		}
	}
	return ids, nil
}

func (m *memoryStore) RevokeIDs(ctx context.Context, userID string, ids []string, at time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var revoked []string
	for _, id := range ids {
		sess, ok := m.sessions[id]
		if !ok || sess.UserID != userID || sess.Revoked {
			continue
		}
		revokeLocked(sess, at)
		revoked = append(revoked, id)
	}
	return revoked, nil
}

func (m *memoryStore) ListActive(ctx context.Context, userID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Session
	for _, sess := range m.sessions {
		if sess.UserID == userID && !sess.Revoked {
			out = append(out, *sess)
		}
	}

	slices.SortFunc(out, func(a, b Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID > b.ID {
			return -1
		}
		if a.ID < b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *memoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.deleteWhere(ctx, func(s *Session) bool {
		return s.ExpiresAt.Before(now)
	})
}

func (m *memoryStore) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.deleteWhere(ctx, func(s *Session) bool {
		return s.Revoked && s.LastUsedAt != nil && s.LastUsedAt.Before(cutoff)
	})
}

func (m *memoryStore) deleteWhere(ctx context.Context, match func(*Session) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, sess := range m.sessions {
		if match(sess) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) Stats(ctx context.Context, now, cutoff time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var st Stats
	for _, s := range m.sessions {
		st.Total++
		expired := s.ExpiresAt.Before(now)
		switch {
		case s.Revoked:
			st.Revoked++
			if s.LastUsedAt != nil && s.LastUsedAt.Before(cutoff) {
				st.Obsolete++
			}
		case !expired:
			st.Active++
		}
		if expired {
			st.Expired++
		}
	}
	return st, nil
}

func revokeLocked(sess *Session, at time.Time) {
	t := at
	sess.Revoked = true
	sess.LastUsedAt = &t
}
