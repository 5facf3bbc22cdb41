package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	email = "alice@example.com"
	pass  = "Secret123"
)

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Register(ctx, email, pass, "  Alice  ")
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)

	access, ok := f.codec.Decode(pair.AccessToken).Typed(auth.TypeAccess)
	require.True(t, ok)
	assert.Equal(t, email, access.Email)

	refresh, ok := f.codec.Decode(pair.RefreshToken).Typed(auth.TypeRefresh)
	require.True(t, ok)
	assert.Equal(t, access.Subject, refresh.Subject)
	assert.Empty(t, refresh.Email)

	u, err := f.manager.Users().GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, access.Subject, u.ID)
	assert.Equal(t, "Alice", u.DisplayName)
	assert.True(t, u.IsActive)
	assert.Nil(t, u.LastLogin)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$2a$"))
	assert.NotEqual(t, pass, u.PasswordHash)

	assert.Equal(t, 1, f.sessions.Len(), "registration opens a session")
	assert.Equal(t, []string{"register:success"}, f.recorder.Events())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)
	first, err := f.manager.Users().GetByEmail(ctx, email)
	require.NoError(t, err)

	pair, err := f.svc.Register(ctx, email, "Other1234", "Imposter")
	assert.Nil(t, pair)
	assert.ErrorIs(t, err, common.ErrConflict)

	again, err := f.manager.Users().GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, first, again, "the original row is untouched")
	assert.Equal(t, 1, f.sessions.Len(), "no session for the rejected attempt")
}

func TestRegister_RaceHitsUniqueConstraint(t *testing.T) {
	f := newFixture(t)
	repo := &fakeUsersRepo{Repository: users.NewMemoryRepository(), createErr: common.ErrorAlreadyExists}
	f.svc.repomanager = &fakeRepoManager{u: repo}

	pair, err := f.svc.Register(context.Background(), email, pass, "Alice")
	assert.Nil(t, pair)
	assert.Equal(t, common.KindConflict, common.KindOf(err))
	assert.Equal(t, 1, repo.created)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, email, pass, "Alice")
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, common.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func TestRegister_StoreFailuresPropagate(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("db down")
	f.svc.repomanager = &fakeRepoManager{u: &fakeUsersRepo{Repository: users.NewMemoryRepository(), getByEmailErr: boom}}

	_, err := f.svc.Register(context.Background(), email, pass, "Alice")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, common.KindInternal, common.KindOf(err))

	f = newFixture(t)
	sessionErr := errors.New("redis down")
	f.svc.sessions = failingStore{err: sessionErr}

	_, err = f.svc.Register(context.Background(), email, pass, "Alice")
	assert.ErrorIs(t, err, sessionErr)
}

func TestRegister_PasswordTooLong(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), email, strings.Repeat("A1a", 30), "Alice")
	assert.Equal(t, common.KindValidation, common.KindOf(err))
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)

	pair, err := f.svc.Login(ctx, email, pass)
	require.NoError(t, err)
	assert.NotEqual(t, reg.AccessToken, pair.AccessToken)
	assert.NotEqual(t, reg.RefreshToken, pair.RefreshToken)

	u, err := f.manager.Users().GetByEmail(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, u.LastLogin)
	assert.WithinDuration(t, time.Now(), *u.LastLogin, 5*time.Second)
	assert.Equal(t, 2, f.sessions.Len())
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "bob@example.com", pass, "Bob")
	require.NoError(t, err)
	bob, err := f.manager.Users().GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NoError(t, f.manager.MemoryUsers().SetActive(bob.ID, false))

	_, unknown := f.svc.Login(ctx, "nobody@example.com", pass)
	_, wrong := f.svc.Login(ctx, email, "Wrong1234")
	_, inactive := f.svc.Login(ctx, "bob@example.com", pass)

	for _, err := range []error{unknown, wrong, inactive} {
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrUnauthorized)
		assert.Equal(t, "invalid email or password", err.Error())
	}
	assert.Equal(t, unknown, wrong)
	assert.Equal(t, wrong, inactive)

	events := f.recorder.Events()
	assert.Contains(t, events, "login:unknown_email")
	assert.Contains(t, events, "login:bad_password")
	assert.Contains(t, events, "login:inactive")
}

func TestLogin_CancelledContextIsNotABadPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), email, pass, "Alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, addr := range []string{email, "nobody@example.com"} {
		pair, err := f.svc.Login(ctx, addr, pass)
		assert.Nil(t, pair)
		assert.ErrorIs(t, err, context.Canceled, addr)
		assert.Equal(t, common.KindInternal, common.KindOf(err), addr)
	}
	assert.Equal(t, []string{"register:success"}, f.recorder.Events())
}

func TestLogin_UnknownEmailStillCompares(t *testing.T) {
	// A cost-10 hash makes a skipped comparison visible as a much faster miss.
	f := newFixture(t)
	f.svc.hasher = password.NewHasher(10, 1)
	ctx := context.Background()

	start := time.Now()
	_, err := f.svc.Login(ctx, "nobody@example.com", pass)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Greater(t, elapsed, 5*time.Millisecond)
}

func TestRefresh_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)
	sessionsBefore := f.sessions.Len()

	pair, err := f.svc.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, reg.AccessToken, pair.AccessToken)
	assert.NotEqual(t, reg.RefreshToken, pair.RefreshToken)
	assert.Equal(t, sessionsBefore, f.sessions.Len(), "refresh does not open a session")

	_, ok := f.codec.Decode(pair.AccessToken).Typed(auth.TypeAccess)
	assert.True(t, ok)
}

func TestRefresh_SameTokenTwice(t *testing.T) {
	// The presented refresh token is not revoked, so replay succeeds.
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)

	first, err := f.svc.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	second, err := f.svc.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestRefresh_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)
	uid := f.codec.Decode(reg.AccessToken).Claims.Subject

	noSubject, err := f.codec.Issue(auth.Claims{}, auth.TypeRefresh, time.Hour)
	require.NoError(t, err)
	ghost, err := f.codec.Issue(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "ghost"}}, auth.TypeRefresh, time.Hour)
	require.NoError(t, err)
	expired, err := f.codec.Issue(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}}, auth.TypeRefresh, -time.Minute)
	require.NoError(t, err)
	other, err := auth.NewCodec([]byte("other-secret"), "HS256")
	require.NoError(t, err)
	forged, err := other.Issue(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}}, auth.TypeRefresh, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"access token", reg.AccessToken},
		{"garbage", "not-a-token"},
		{"no subject", noSubject},
		{"unknown user", ghost},
		{"expired", expired},
		{"forged", forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := f.svc.Refresh(ctx, tt.token)
			assert.Nil(t, pair)
			assert.ErrorIs(t, err, common.ErrUnauthorized)
		})
	}

	require.NoError(t, f.manager.MemoryUsers().SetActive(uid, false))
	_, err = f.svc.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrUnauthorized, "inactive user")
}

func TestRefresh_LookupFailurePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)

	boom := errors.New("db down")
	f.svc.repomanager = &fakeRepoManager{u: &fakeUsersRepo{Repository: users.NewMemoryRepository(), getByIDErr: boom}}

	_, err = f.svc.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, boom)
}

func TestLogout_OnlyAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)
	principal, err := f.gate.Authenticate(ctx, reg.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, principal))

	_, err = f.gate.Authenticate(ctx, reg.AccessToken)
	assert.NoError(t, err, "tokens stay valid after logout")
	assert.Equal(t, 1, f.sessions.Len(), "session is not removed")
	assert.Contains(t, f.recorder.Events(), "logout:success")

	assert.ErrorIs(t, f.svc.Logout(ctx, nil), common.ErrUnauthorized)
}

func TestScenario_RegisterLoginRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, email, pass, "Alice")
	require.NoError(t, err)

	login, err := f.svc.Login(ctx, email, pass)
	require.NoError(t, err)
	assert.NotEqual(t, reg.AccessToken, login.AccessToken)
	assert.NotEqual(t, reg.RefreshToken, login.RefreshToken)

	time.Sleep(1100 * time.Millisecond)

	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.AccessToken, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	before := f.codec.Decode(login.AccessToken).Claims.ExpiresAt.Time
	after := f.codec.Decode(refreshed.AccessToken).Claims.ExpiresAt.Time
	assert.True(t, after.After(before), "refreshed access token expires later")

	principal, err := f.gate.Authenticate(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, email, principal.Email)
}

func TestNewAuthService_DefaultRecorder(t *testing.T) {
	codec, err := auth.NewCodec([]byte(testSecret), "")
	require.NoError(t, err)
	f := newFixture(t)

	svc := NewAuthService(testConfig(), f.manager, f.sessions, password.NewHasher(bcrypt.MinCost, 1), codec, logging.Nop{}).
		WithRecorder(nil)

	assert.NotPanics(t, func() {
		_, _ = svc.Register(context.Background(), email, pass, "Alice")
	})
}
