// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 12

// ErrPasswordTooLong is returned by Hash for passwords bcrypt cannot take
// (more than 72 bytes).
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher runs bcrypt on a bounded number of slots so that CPU-heavy hashing
// cannot occupy every core under load.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	dummy []byte
}

// NewHasher returns a Hasher with the given cost and slot count. Cost is
// clamped to bcrypt's valid range; workers <= 0 means GOMAXPROCS.
func NewHasher(cost, workers int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	h := &Hasher{cost: cost, slots: semaphore.NewWeighted(int64(workers))}
	// Compared against when the account does not exist, so a miss costs the
	// same as a wrong password.
	h.dummy, _ = bcrypt.GenerateFromPassword([]byte("authkeeper-dummy-password"), cost)
	return h
}

// Cost returns the effective bcrypt cost.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns a salted bcrypt hash in the $2a$<cost>$ format.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash. A malformed hash or an
// oversized password is a mismatch. The error is non-nil only when no slot
// could be acquired before ctx ended.
func (h *Hasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if len(password) > 72 {
		return false, nil
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// VerifyDummy burns one comparison against a fixed hash. Callers use it on
// the unknown-account path.
func (h *Hasher) VerifyDummy(ctx context.Context, password string) error {
	if len(password) > 72 {
		password = password[:72]
	}
	_, err := h.Verify(ctx, password, string(h.dummy))
	return err
}
