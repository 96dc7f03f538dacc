package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRegistry keeps sessions in a map. Sessions do not survive a restart.
type MemoryRegistry struct {
	limits Limits
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

var _ Registry = (*MemoryRegistry)(nil)

func NewMemoryRegistry(limits Limits) *MemoryRegistry {
	return &MemoryRegistry{
		limits:   limits.withDefaults(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (m *MemoryRegistry) Create(_ context.Context, code, senderName string, files []FileRecord) (*Session, error) {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[code]; ok && !existing.Expired(now) {
		return nil, fmt.Errorf("%w: %s", ErrExists, code)
	}

	s := &Session{
		Code:         code,
		SenderName:   senderName,
		Files:        make([]FileRecord, len(files)),
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.limits.TTL),
		MaxDownloads: m.limits.MaxDownloads,
	}
	for i, f := range files {
		f.SessionCode = code
		s.Files[i] = f
	}
	m.sessions[code] = s
	return copySession(s), nil
}

func (m *MemoryRegistry) Get(_ context.Context, code string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	return copySession(s), nil
}

func (m *MemoryRegistry) IncrementDownloadCount(_ context.Context, code string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	if s.Exhausted() {
		return nil, fmt.Errorf("%w: %s", ErrLimitExceeded, code)
	}
	s.DownloadCount++
	return copySession(s), nil
}

func (m *MemoryRegistry) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	delete(m.sessions, code)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRegistry) CleanupExpired(_ context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for code, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, code)
			removed++
		}
	}
	return removed, nil
}

// lookup drops the session when it has expired. Callers hold m.mu.
func (m *MemoryRegistry) lookup(code string) (*Session, error) {
	s, ok := m.sessions[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if s.Expired(m.now()) {
		delete(m.sessions, code)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return s, nil
}

func copySession(s *Session) *Session {
	c := *s
	c.Files = append([]FileRecord(nil), s.Files...)
	return &c
}
