package users

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/JaimeStill/headcount/pkg/query"
	"github.com/JaimeStill/headcount/pkg/repository"
)

// Store reads and creates user accounts.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, cmd CreateCommand) (*User, error)
}

var projection = query.
	NewProjectionMap("public", "users", "u").
	Project("id", "ID").
	Project("username", "Username").
	Project("email", "Email").
	Project("password_hash", "PasswordHash").
	Project("role", "Role").
	Project("is_active", "IsActive").
	Project("created_at", "CreatedAt")

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a PostgreSQL user store.
func NewStore(db *sql.DB, logger *slog.Logger) Store {
	return &repo{
		db:     db,
		logger: logger.With("system", "users"),
	}
}

func (r *repo) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findBy(ctx, "Username", username)
}

func (r *repo) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findBy(ctx, "Email", email)
}

func (r *repo) findBy(ctx context.Context, field, value string) (*User, error) {
	q, args := query.NewBuilder(projection).BuildSingle(field, value)

	u, err := repository.QueryOne(ctx, r.db, q, args, scanUser)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &u, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*User, error) {
	if cmd.Role != RoleAdmin && cmd.Role != RoleViewer {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, cmd.Role)
	}

	hash, err := HashPassword(cmd.Password)
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO users (id, username, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, email, password_hash, role, is_active, created_at`
	args := []any{uuid.New(), cmd.Username, cmd.Email, hash, cmd.Role}

	u, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (User, error) {
		return repository.QueryOne(ctx, tx, q, args, scanUser)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("user created", "username", u.Username, "role", u.Role)
	return &u, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func scanUser(s repository.Scanner) (User, error) {
	var u User
	err := s.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
	)
	return u, err
}
