package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// Authenticator resolves a bearer access token to an active user.
type Authenticator struct {
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
}

func NewAuthenticator(m repomanager.RepositoryManager, codec *auth.Codec) *Authenticator {
	return &Authenticator{repomanager: m, codec: codec}
}

// Authenticate returns the principal for token. Every token problem is the
// same Unauthorized; a known but inactive user is Forbidden.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	invalid := common.Unauthorized(common.InvalidTokenMessage)

	claims, ok := a.codec.Decode(token).Typed(auth.TypeAccess)
	if !ok || claims.Subject == "" {
		return nil, invalid
	}

	user, err := a.repomanager.Users().GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	if !user.IsActive {
		return nil, common.Forbidden("user account is inactive")
	}

	return user, nil
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
