package auth

import (
	"context"
	"fmt"
)

type tokenVerifier interface {
	Verify(token string) (*Claims, error)
}

type sessionChecker interface {
	Active(ctx context.Context, sessionID, userID string) (bool, error)
}

type profileResolver interface {
	Resolve(ctx context.Context, userID string) (Principal, error)
}

// Authenticator turns a bearer token into a Principal.
type Authenticator struct {
	tokens   tokenVerifier
	sessions sessionChecker
	profiles profileResolver
}

func NewAuthenticator(tokens tokenVerifier, sessions sessionChecker, profiles profileResolver) *Authenticator {
	if tokens == nil || profiles == nil {
		panic("auth: token verifier and profile resolver required")
	}
	return &Authenticator{tokens: tokens, sessions: sessions, profiles: profiles}
}

// Authenticate verifies the token, checks the session is still live when a session store is
// configured, and loads the profile linkage. The role recorded on the user row wins over the claim;
// a mismatch invalidates the token.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	if a.sessions != nil {
		active, err := a.sessions.Active(ctx, claims.SessionID, claims.Subject)
		if err != nil {
			return Principal{}, err
		}
		if !active {
			return Principal{}, ErrSessionRevoked
		}
	}
	p, err := a.profiles.Resolve(ctx, claims.Subject)
	if err != nil {
		return Principal{}, err
	}
	if claimed, ok := ParseRole(claims.Role); !ok || claimed != p.Role {
		return Principal{}, fmt.Errorf("%w: role mismatch", ErrInvalidToken)
	}
	return p, nil
}
