package repomanager

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// RepositoryManager owns the storage connection and vends repositories
// bound to it.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	// InTx runs fn with a Repository whose calls share one transaction.
	// The transaction commits when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, u users.Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}
