package users

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// IDClaims are the ID token claims used to match a local account.
type IDClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	PreferredUsername string `json:"preferred_username"`
}

// IDTokenVerifier validates externally issued ID tokens.
type IDTokenVerifier interface {
	Verify(ctx context.Context, raw string) (*IDClaims, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers issuer and verifies tokens for clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider %s: %w", issuer, err)
	}
	return &oidcVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *oidcVerifier) Verify(ctx context.Context, raw string) (*IDClaims, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	var claims IDClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims.Subject = token.Subject
	return &claims, nil
}
