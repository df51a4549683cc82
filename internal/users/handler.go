package users

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/JaimeStill/headcount/pkg/handlers"
	"github.com/JaimeStill/headcount/pkg/routes"
)

// Handler provides HTTP endpoints for login and the current user.
type Handler struct {
	auth   *Authenticator
	logger *slog.Logger
}

// NewHandler creates a users Handler.
func NewHandler(auth *Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		auth:   auth,
		logger: logger.With("handler", "users"),
	}
}

// Routes returns the route group definition for user endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/auth/login", Handler: h.Login},
			{
				Method:     "GET",
				Pattern:    "/users/me",
				Handler:    h.Me,
				Middleware: []routes.Middleware{h.auth.RequireAuth()},
			},
		},
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Login exchanges a username and password for an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(w, r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	if creds.Username == "" || creds.Password == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("username and password required"))
		return
	}

	token, exp, err := h.auth.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		status := MapHTTPStatus(err)
		if status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		handlers.RespondError(w, h.logger, status, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   exp.Unix(),
	})
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, ErrUnauthorized)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, u)
}

// readCredentials accepts query parameters, a form body or a JSON body.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	q := r.URL.Query()
	if q.Has("username") {
		return credentials{Username: q.Get("username"), Password: q.Get("password")}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return credentials{}, fmt.Errorf("parse form: %w", err)
		}
		return credentials{Username: r.PostForm.Get("username"), Password: r.PostForm.Get("password")}, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 16); err != nil {
			return credentials{}, fmt.Errorf("parse form: %w", err)
		}
		return credentials{Username: r.PostFormValue("username"), Password: r.PostFormValue("password")}, nil
	default:
		var c credentials
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			return credentials{}, fmt.Errorf("decode credentials: %w", err)
		}
		return c, nil
	}
}
