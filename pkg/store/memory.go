package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/sqlgate/pkg/event"
)

// Memory is a Store held in process memory. It is used when no system
// database is configured, and in tests.
type Memory struct {
	scripts      map[string]event.Script
	apps         []App
	groups       []AppGroup
	roles        []UserAppRole
	services     []Service
	defaultAppID *int
	now          func() time.Time
	mu           sync.RWMutex
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		scripts: make(map[string]event.Script),
		now:     time.Now,
	}
}

// Seed replaces the catalog contents.
func (m *Memory) Seed(apps []App, groups []AppGroup, roles []UserAppRole, services []Service, defaultAppID *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps = slices.Clone(apps)
	m.groups = slices.Clone(groups)
	m.roles = slices.Clone(roles)
	m.services = slices.Clone(services)
	m.defaultAppID = defaultAppID
}

func (m *Memory) FindScript(_ context.Context, name string) (event.Script, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[name]
	return s, ok, nil
}

func (m *Memory) ListScripts(_ context.Context) ([]event.Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]event.Script, 0, len(m.scripts))
	for _, name := range slices.Sorted(maps.Keys(m.scripts)) {
		out = append(out, m.scripts[name])
	}
	return out, nil
}

func (m *Memory) GetScript(_ context.Context, name string) (event.Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[name]
	if !ok {
		return event.Script{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) CreateScript(_ context.Context, s event.Script) (event.Script, error) {
	if strings.TrimSpace(s.Name) == "" {
		return event.Script{}, ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[s.Name]; ok {
		return event.Script{}, ErrAlreadyExists
	}
	s.CreatedAt = m.now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.scripts[s.Name] = s
	return s, nil
}

func (m *Memory) UpdateScript(_ context.Context, s event.Script) (event.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.scripts[s.Name]
	if !ok {
		return event.Script{}, ErrNotFound
	}
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = m.now().UTC()
	m.scripts[s.Name] = s
	return s, nil
}

func (m *Memory) DeleteScript(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[name]; !ok {
		return ErrNotFound
	}
	delete(m.scripts, name)
	return nil
}

func (m *Memory) Apps(context.Context) ([]App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.apps), nil
}

func (m *Memory) AppGroups(context.Context) ([]AppGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.groups), nil
}

func (m *Memory) UserAppRoles(_ context.Context, userID int) ([]UserAppRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []UserAppRole
	for _, r := range m.roles {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Services(context.Context) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.services), nil
}

func (m *Memory) DefaultAppID(context.Context) (*int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultAppID, nil
}

func (m *Memory) Close() {}
