package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	EnvAuthJWTSecret         = "HEADCOUNT_AUTH_JWT_SECRET"
	EnvAuthTokenExpiry       = "HEADCOUNT_AUTH_TOKEN_EXPIRY"
	EnvAuthIssuer            = "HEADCOUNT_AUTH_ISSUER"
	EnvAuthOIDCIssuer        = "HEADCOUNT_AUTH_OIDC_ISSUER"
	EnvAuthOIDCClientID      = "HEADCOUNT_AUTH_OIDC_CLIENT_ID"
	EnvAuthSeedAdminUsername = "HEADCOUNT_AUTH_SEED_ADMIN_USERNAME"
	EnvAuthSeedAdminEmail    = "HEADCOUNT_AUTH_SEED_ADMIN_EMAIL"
	EnvAuthSeedAdminPassword = "HEADCOUNT_AUTH_SEED_ADMIN_PASSWORD"
)

// ErrMissingJWTSecret is returned when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("jwt_secret is required")

// AuthConfig holds token signing, OIDC, and admin seed settings.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"`
	Issuer      string `toml:"issuer"`

	// OIDCIssuer enables verification of externally issued ID tokens.
	OIDCIssuer   string `toml:"oidc_issuer"`
	OIDCClientID string `toml:"oidc_client_id"`

	// The admin account is created on startup only when a password is set.
	SeedAdminUsername string `toml:"seed_admin_username"`
	SeedAdminEmail    string `toml:"seed_admin_email"`
	SeedAdminPassword string `toml:"seed_admin_password"`
}

// TokenExpiryDuration returns TokenExpiry as a time.Duration.
func (c *AuthConfig) TokenExpiryDuration() time.Duration {
	d, _ := time.ParseDuration(c.TokenExpiry)
	return d
}

// OIDCEnabled reports whether an OIDC issuer is configured.
func (c *AuthConfig) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *AuthConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *AuthConfig) Merge(overlay *AuthConfig) {
	if overlay.JWTSecret != "" {
		c.JWTSecret = overlay.JWTSecret
	}
	if overlay.TokenExpiry != "" {
		c.TokenExpiry = overlay.TokenExpiry
	}
	if overlay.Issuer != "" {
		c.Issuer = overlay.Issuer
	}
	if overlay.OIDCIssuer != "" {
		c.OIDCIssuer = overlay.OIDCIssuer
	}
	if overlay.OIDCClientID != "" {
		c.OIDCClientID = overlay.OIDCClientID
	}
	if overlay.SeedAdminUsername != "" {
		c.SeedAdminUsername = overlay.SeedAdminUsername
	}
	if overlay.SeedAdminEmail != "" {
		c.SeedAdminEmail = overlay.SeedAdminEmail
	}
	if overlay.SeedAdminPassword != "" {
		c.SeedAdminPassword = overlay.SeedAdminPassword
	}
}

func (c *AuthConfig) loadDefaults() {
	if c.TokenExpiry == "" {
		c.TokenExpiry = "24h"
	}
	if c.Issuer == "" {
		c.Issuer = "headcount"
	}
	if c.SeedAdminUsername == "" {
		c.SeedAdminUsername = "admin"
	}
	if c.SeedAdminEmail == "" {
		c.SeedAdminEmail = "admin@example.com"
	}
}

func (c *AuthConfig) loadEnv() {
	vars := []struct {
		env string
		dst *string
	}{
		{EnvAuthJWTSecret, &c.JWTSecret},
		{EnvAuthTokenExpiry, &c.TokenExpiry},
		{EnvAuthIssuer, &c.Issuer},
		{EnvAuthOIDCIssuer, &c.OIDCIssuer},
		{EnvAuthOIDCClientID, &c.OIDCClientID},
		{EnvAuthSeedAdminUsername, &c.SeedAdminUsername},
		{EnvAuthSeedAdminEmail, &c.SeedAdminEmail},
		{EnvAuthSeedAdminPassword, &c.SeedAdminPassword},
	}
	for _, v := range vars {
		if val := os.Getenv(v.env); val != "" {
			*v.dst = val
		}
	}
}

func (c *AuthConfig) validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return fmt.Errorf("invalid token_expiry: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("token_expiry must be positive: %s", c.TokenExpiry)
	}
	if c.OIDCIssuer != "" && c.OIDCClientID == "" {
		return fmt.Errorf("oidc_client_id is required when oidc_issuer is set")
	}
	return nil
}
