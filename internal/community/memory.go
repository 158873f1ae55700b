package community

import (
	"context"
	"sync"

	"github.com/flexprice/pullpay/internal/types"
)

type roleKey struct {
	community types.Address
	roleID    int64
}

// MemoryRoles keeps role membership in process
type MemoryRoles struct {
	mu      sync.RWMutex
	members map[roleKey]map[types.Address]struct{}
}

func NewMemoryRoles() *MemoryRoles {
	return &MemoryRoles{
		members: make(map[roleKey]map[types.Address]struct{}),
	}
}

func (m *MemoryRoles) Grant(_ context.Context, community types.Address, roleID int64, member types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := roleKey{community, roleID}
	if m.members[k] == nil {
		m.members[k] = make(map[types.Address]struct{})
	}
	m.members[k][member] = struct{}{}
	return nil
}

func (m *MemoryRoles) Revoke(_ context.Context, community types.Address, roleID int64, member types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.members[roleKey{community, roleID}], member)
	return nil
}

func (m *MemoryRoles) HasRole(_ context.Context, community types.Address, roleID int64, member types.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[roleKey{community, roleID}][member]
	return ok, nil
}
