package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/sessions"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type fixture struct {
	svc      *AuthService
	gate     *Authenticator
	manager  *repomanager.InMemoryRepositoryManager
	sessions *sessions.MemoryStore
	codec    *auth.Codec
	recorder *fakeRecorder
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		SessionTTL:      time.Hour,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	codec, err := auth.NewCodec([]byte(testSecret), "HS256")
	require.NoError(t, err)

	m := repomanager.NewInMemoryRepositoryManager()
	store := sessions.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })

	rec := &fakeRecorder{}
	svc := NewAuthService(testConfig(), m, store, password.NewHasher(bcrypt.MinCost, 2), codec, logging.Nop{}).
		WithRecorder(rec)

	return &fixture{
		svc:      svc,
		gate:     NewAuthenticator(m, codec),
		manager:  m,
		sessions: store,
		codec:    codec,
		recorder: rec,
	}
}

// fakeRecorder collects AuthEvent calls as "op:outcome".
type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRecorder) AuthEvent(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, op+":"+outcome)
}

func (r *fakeRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// fakeUsersRepo lets tests script repository failures.
type fakeUsersRepo struct {
	users.Repository

	getByEmailErr error
	getByIDErr    error
	createErr     error
	created       int
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getByEmailErr != nil {
		return nil, f.getByEmailErr
	}
	return f.Repository.GetByEmail(ctx, email)
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	return f.Repository.GetByID(ctx, id)
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.created++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.Repository.Create(ctx, u)
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	u users.Repository
}

func (m *fakeRepoManager) Users() users.Repository { return m.u }

func (m *fakeRepoManager) InTx(ctx context.Context, fn func(context.Context, users.Repository) error) error {
	return fn(ctx, m.u)
}

// failingStore refuses every write.
type failingStore struct {
	sessions.Store
	err error
}

func (s failingStore) Put(context.Context, string, string, time.Duration) error { return s.err }
