package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Credentials is a login request. OIDC logins carry IDToken; development
// logins carry UserID.
type Credentials struct {
	IDToken string `json:"id_token,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// Authenticator verifies login credentials and resolves the user id.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// OIDCAuthenticator verifies ID tokens issued by an OpenID Connect provider.
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCAuthenticator discovers issuer and verifies tokens for clientID.
func NewOIDCAuthenticator(ctx context.Context, issuer, clientID string) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}
	return NewOIDCVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCVerifier wraps an existing verifier.
func NewOIDCVerifier(verifier *oidc.IDTokenVerifier) *OIDCAuthenticator {
	return &OIDCAuthenticator{verifier: verifier}
}

// Authenticate verifies the ID token and returns its subject.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if creds.IDToken == "" {
		return "", fmt.Errorf("%w: id_token required", ErrInvalidCredentials)
	}

	token, err := a.verifier.Verify(ctx, creds.IDToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if token.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidCredentials)
	}
	return token.Subject, nil
}

// DevAuthenticator trusts the supplied user id. It is only wired for local
// development.
type DevAuthenticator struct{}

func (DevAuthenticator) Authenticate(_ context.Context, creds Credentials) (string, error) {
	if creds.UserID == "" {
		return "", fmt.Errorf("%w: user_id required", ErrInvalidCredentials)
	}
	return creds.UserID, nil
}
