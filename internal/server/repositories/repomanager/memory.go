package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// InMemoryRepositoryManager keeps everything in process memory. Data is lost
// on exit.
type InMemoryRepositoryManager struct {
	users *users.MemoryRepository
	txMu  sync.Mutex
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{users: users.NewMemoryRepository()}
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Users() users.Repository { return m.users }

// InTx serializes fn against other InTx calls. There is no rollback.
func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, u users.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m.users)
}

// MemoryUsers returns the concrete repository, for operator tooling and tests.
func (m *InMemoryRepositoryManager) MemoryUsers() *users.MemoryRepository { return m.users }

func (m *InMemoryRepositoryManager) Ping(context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Close() error { return nil }
