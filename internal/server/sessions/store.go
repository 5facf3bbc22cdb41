// Package sessions keeps revocable login sessions in an expiring key-value
// store. A session maps an opaque random id to a user id.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// KeyPrefix namespaces session entries in the backing store.
const KeyPrefix = "session:"

// IDBytes is how much randomness goes into a session id.
const IDBytes = 32

// ErrInvalidTTL is returned by Put and Touch for a ttl below one second.
var ErrInvalidTTL = errors.New("sessions: ttl must be at least one second")

// Store is the session store contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put writes id → userID, replacing any existing entry, expiring after ttl.
	Put(ctx context.Context, id, userID string, ttl time.Duration) error
	// Get returns the user id for a live session.
	Get(ctx context.Context, id string) (userID string, ok bool, err error)
	// Delete removes the session and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// Touch resets the ttl of a live session and reports whether it existed.
	Touch(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Close() error
}

// NewID returns 32 random bytes as unpadded URL-safe base64 (43 chars).
func NewID() (string, error) {
	return common.MakeRandURLSafeString(IDBytes)
}

// Key is the storage key for a session id.
func Key(id string) string {
	return KeyPrefix + id
}

func checkTTL(ttl time.Duration) error {
	if ttl < time.Second {
		return ErrInvalidTTL
	}
	return nil
}
