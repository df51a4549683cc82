package users_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/internal/users"
	"github.com/JaimeStill/headcount/pkg/routes"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu    sync.Mutex
	users map[string]*users.User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*users.User)}
}

func (m *memStore) FindByUsername(_ context.Context, username string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memStore) Create(_ context.Context, cmd users.CreateCommand) (*users.User, error) {
	hash, err := users.HashPassword(cmd.Password)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[cmd.Username]; ok {
		return nil, users.ErrDuplicate
	}
	u := &users.User{
		ID:           uuid.New(),
		Username:     cmd.Username,
		Email:        cmd.Email,
		PasswordHash: hash,
		Role:         cmd.Role,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[u.Username] = u
	return u, nil
}

type mockVerifier struct {
	claims *users.IDClaims
	err    error
}

func (m *mockVerifier) Verify(context.Context, string) (*users.IDClaims, error) {
	return m.claims, m.err
}

const secret = "test-secret"

func newAuth(t *testing.T, oidc users.IDTokenVerifier) (*users.Authenticator, *memStore, *users.TokenService) {
	t.Helper()
	store := newMemStore()
	ctx := context.Background()
	for _, c := range []users.CreateCommand{
		{Username: "admin", Email: "admin@example.com", Password: "admin123", Role: users.RoleAdmin},
		{Username: "viewer", Email: "viewer@example.com", Password: "viewer123", Role: users.RoleViewer},
	} {
		if _, err := store.Create(ctx, c); err != nil {
			t.Fatalf("create %s: %v", c.Username, err)
		}
	}
	tokens := users.NewTokenService(secret, "headcount", 24*time.Hour)
	return users.NewAuthenticator(store, tokens, oidc, discard()), store, tokens
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := users.NewTokenService(secret, "headcount", 24*time.Hour)

	raw, exp, err := tokens.Issue(&users.User{Username: "admin", Role: users.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if d := time.Until(exp); d < 23*time.Hour || d > 24*time.Hour {
		t.Errorf("expiry: got %v from now, want 24h", d)
	}

	claims, err := tokens.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != users.RoleAdmin {
		t.Errorf("claims: got %+v", claims)
	}
}

func TestTokenRejected(t *testing.T) {
	tokens := users.NewTokenService(secret, "headcount", 24*time.Hour)
	u := &users.User{Username: "admin"}

	expired, _, _ := users.NewTokenService(secret, "headcount", -time.Minute).Issue(u)
	otherKey, _, _ := users.NewTokenService("other", "headcount", time.Hour).Issue(u)
	otherIssuer, _, _ := users.NewTokenService(secret, "elsewhere", time.Hour).Issue(u)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    "headcount",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong key", otherKey},
		{"wrong issuer", otherIssuer},
		{"alg none", unsigned},
		{"garbage", "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tokens.Parse(tt.token); !errors.Is(err, users.ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	auth, store, tokens := newAuth(t, nil)
	ctx := context.Background()

	raw, _, err := auth.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if claims, err := tokens.Parse(raw); err != nil || claims.Subject != "admin" {
		t.Errorf("issued token: claims %+v, err %v", claims, err)
	}

	if _, _, err := auth.Login(ctx, "admin", "wrong"); !errors.Is(err, users.ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, _, err := auth.Login(ctx, "nobody", "admin123"); !errors.Is(err, users.ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v", err)
	}

	store.users["viewer"].IsActive = false
	if _, _, err := auth.Login(ctx, "viewer", "viewer123"); !errors.Is(err, users.ErrInvalidCredentials) {
		t.Errorf("inactive user: got %v", err)
	}
}

func TestAuthenticateOIDC(t *testing.T) {
	tests := []struct {
		name     string
		verifier *mockVerifier
		want     string
		wantErr  bool
	}{
		{
			name:     "preferred username",
			verifier: &mockVerifier{claims: &users.IDClaims{Subject: "ext-1", PreferredUsername: "viewer"}},
			want:     "viewer",
		},
		{
			name:     "verified email",
			verifier: &mockVerifier{claims: &users.IDClaims{Subject: "ext-2", Email: "admin@example.com", EmailVerified: true}},
			want:     "admin",
		},
		{
			name:     "unverified email",
			verifier: &mockVerifier{claims: &users.IDClaims{Subject: "ext-3", Email: "admin@example.com"}},
			wantErr:  true,
		},
		{
			name:     "verification failure",
			verifier: &mockVerifier{err: users.ErrUnauthorized},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, _, _ := newAuth(t, tt.verifier)

			u, err := auth.Authenticate(context.Background(), "external-id-token")
			if tt.wantErr {
				if !errors.Is(err, users.ErrUnauthorized) {
					t.Errorf("got %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if u.Username != tt.want {
				t.Errorf("user: got %s, want %s", u.Username, tt.want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "Bearer abc", "", "abc"},
		{"lowercase scheme", "bearer abc", "", "abc"},
		{"query", "", "token=xyz", "xyz"},
		{"header wins", "Bearer abc", "token=xyz", "abc"},
		{"basic scheme", "Basic abc", "", ""},
		{"none", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws/live-count?"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := users.BearerToken(r); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	auth, _, tokens := newAuth(t, nil)
	adminToken, _, _ := tokens.Issue(&users.User{Username: "admin", Role: users.RoleAdmin})
	viewerToken, _, _ := tokens.Issue(&users.User{Username: "viewer", Role: users.RoleViewer})
	ghostToken, _, _ := tokens.Issue(&users.User{Username: "ghost", Role: users.RoleAdmin})

	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	mux := http.NewServeMux()
	routes.Register(mux, routes.Group{
		Middleware: []routes.Middleware{auth.RequireAuth()},
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/count/current", Handler: ok},
			{
				Method:     "POST",
				Pattern:    "/simulate/count",
				Handler:    ok,
				Middleware: []routes.Middleware{auth.RequireRole(users.RoleAdmin)},
			},
		},
	})

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", "GET", "/count/current", "", http.StatusUnauthorized},
		{"viewer reads", "GET", "/count/current", viewerToken, http.StatusNoContent},
		{"viewer simulates", "POST", "/simulate/count", viewerToken, http.StatusForbidden},
		{"admin simulates", "POST", "/simulate/count", adminToken, http.StatusNoContent},
		{"unknown subject", "GET", "/count/current", ghostToken, http.StatusUnauthorized},
		{"tampered", "GET", "/count/current", viewerToken + "x", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, r)

			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Errorf("missing WWW-Authenticate header")
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	auth, _, tokens := newAuth(t, nil)
	mux := http.NewServeMux()
	routes.Register(mux, users.NewHandler(auth, discard()).Routes())

	form := url.Values{"username": {"admin"}, "password": {"admin123"}}.Encode()

	tests := []struct {
		name        string
		target      string
		body        string
		contentType string
		want        int
	}{
		{"query", "/auth/login?username=admin&password=admin123", "", "", http.StatusOK},
		{"form", "/auth/login", form, "application/x-www-form-urlencoded", http.StatusOK},
		{"json", "/auth/login", `{"username":"admin","password":"admin123"}`, "application/json", http.StatusOK},
		{"wrong password", "/auth/login?username=admin&password=nope", "", "", http.StatusUnauthorized},
		{"missing password", "/auth/login", `{"username":"admin"}`, "application/json", http.StatusBadRequest},
		{"malformed", "/auth/login", `{`, "application/json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, r)

			if rec.Code != tt.want {
				t.Fatalf("status: got %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want != http.StatusOK {
				return
			}

			var body struct {
				AccessToken string `json:"access_token"`
				TokenType   string `json:"token_type"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.TokenType != "bearer" {
				t.Errorf("token type: got %s", body.TokenType)
			}
			if _, err := tokens.Parse(body.AccessToken); err != nil {
				t.Errorf("access token invalid: %v", err)
			}
		})
	}
}

func TestMeHandler(t *testing.T) {
	auth, _, tokens := newAuth(t, nil)
	mux := http.NewServeMux()
	routes.Register(mux, users.NewHandler(auth, discard()).Routes())

	token, _, _ := tokens.Issue(&users.User{Username: "viewer"})
	r := httptest.NewRequest("GET", "/users/me?token="+token, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["username"] != "viewer" || body["role"] != users.RoleViewer {
		t.Errorf("body: got %v", body)
	}
	if _, ok := body["PasswordHash"]; ok {
		t.Errorf("password hash leaked: %v", body)
	}
}

func TestSeedAdmin(t *testing.T) {
	store := newMemStore()
	cfg := &config.AuthConfig{
		SeedAdminUsername: "root",
		SeedAdminEmail:    "root@example.com",
		SeedAdminPassword: "s3cret",
	}
	ctx := context.Background()

	if err := users.SeedAdmin(ctx, store, cfg, discard()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := users.SeedAdmin(ctx, store, cfg, discard()); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	u, err := store.FindByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !u.IsAdmin() || !users.CheckPassword(u.PasswordHash, "s3cret") {
		t.Errorf("seeded user: %+v", u)
	}
	if len(store.users) != 1 {
		t.Errorf("users: got %d, want 1", len(store.users))
	}
}

func TestSeedAdminWithoutPassword(t *testing.T) {
	store := newMemStore()
	if err := users.SeedAdmin(context.Background(), store, &config.AuthConfig{SeedAdminUsername: "admin"}, discard()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(store.users) != 0 {
		t.Errorf("seeded without a password")
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{users.ErrInvalidCredentials, http.StatusUnauthorized},
		{users.ErrUnauthorized, http.StatusUnauthorized},
		{users.ErrForbidden, http.StatusForbidden},
		{users.ErrDuplicate, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := users.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v): got %d, want %d", tt.err, got, tt.want)
		}
	}
}
