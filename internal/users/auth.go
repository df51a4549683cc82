package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/pkg/handlers"
	"github.com/JaimeStill/headcount/pkg/routes"
)

type contextKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the authenticated user, if any.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(contextKey{}).(*User)
	return u, ok
}

// Authenticator resolves credentials and bearer tokens to active users.
type Authenticator struct {
	store  Store
	tokens *TokenService
	oidc   IDTokenVerifier
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator. oidc may be nil.
func NewAuthenticator(store Store, tokens *TokenService, oidc IDTokenVerifier, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		store:  store,
		tokens: tokens,
		oidc:   oidc,
		logger: logger.With("system", "auth"),
	}
}

// Login checks username and password and issues an access token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	u, err := a.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, err
	}
	if !u.IsActive || !CheckPassword(u.PasswordHash, password) {
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, exp, err := a.tokens.Issue(u)
	if err != nil {
		return "", time.Time{}, err
	}

	a.logger.Info("login succeeded", "username", u.Username)
	return token, exp, nil
}

// Authenticate resolves a bearer token. Access tokens are tried first, then
// OIDC ID tokens when a verifier is configured.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*User, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	claims, err := a.tokens.Parse(raw)
	if err == nil {
		return a.active(a.store.FindByUsername(ctx, claims.Subject))
	}
	if a.oidc == nil {
		return nil, err
	}

	id, oerr := a.oidc.Verify(ctx, raw)
	if oerr != nil {
		return nil, oerr
	}
	if id.PreferredUsername != "" {
		if u, err := a.active(a.store.FindByUsername(ctx, id.PreferredUsername)); err == nil {
			return u, nil
		}
	}
	if id.Email != "" && id.EmailVerified {
		return a.active(a.store.FindByEmail(ctx, id.Email))
	}
	return nil, fmt.Errorf("%w: no local account for subject %s", ErrUnauthorized, id.Subject)
}

func (a *Authenticator) active(u *User, err error) (*User, error) {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrUnauthorized)
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: inactive user", ErrUnauthorized)
	}
	return u, nil
}

// RequireAuth rejects requests without a valid token. The token is read from
// the Authorization header or the token query parameter.
func (a *Authenticator) RequireAuth() routes.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := a.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				status := MapHTTPStatus(err)
				if status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", "Bearer")
				}
				handlers.RespondError(w, a.logger, status, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireRole rejects authenticated users without role. It must run inside
// RequireAuth.
func (a *Authenticator) RequireRole(role string) routes.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := FromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				handlers.RespondError(w, a.logger, http.StatusUnauthorized, ErrUnauthorized)
				return
			}
			if u.Role != role {
				handlers.RespondError(w, a.logger, http.StatusForbidden, fmt.Errorf("%w: %s required", ErrForbidden, role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter used by browser WebSocket clients.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// SeedAdmin creates the configured admin account when it does not exist.
func SeedAdmin(ctx context.Context, store Store, cfg *config.AuthConfig, logger *slog.Logger) error {
	if cfg.SeedAdminPassword == "" {
		return nil
	}

	_, err := store.FindByUsername(ctx, cfg.SeedAdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("seed admin: %w", err)
	}

	_, err = store.Create(ctx, CreateCommand{
		Username: cfg.SeedAdminUsername,
		Email:    cfg.SeedAdminEmail,
		Password: cfg.SeedAdminPassword,
		Role:     RoleAdmin,
	})
	if err != nil && !errors.Is(err, ErrDuplicate) {
		return fmt.Errorf("seed admin: %w", err)
	}

	logger.Info("admin account seeded", "username", cfg.SeedAdminUsername)
	return nil
}
