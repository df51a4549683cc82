package users_test

import (
	"context"
	"errors"
	"testing"

	"github.com/JaimeStill/headcount/internal/testdb"
	"github.com/JaimeStill/headcount/internal/users"
)

func TestStoreIntegration(t *testing.T) {
	db := testdb.Start(t)
	store := users.NewStore(db, discard())
	ctx := context.Background()

	created, err := store.Create(ctx, users.CreateCommand{
		Username: "operator",
		Email:    "operator@example.com",
		Password: "hunter2",
		Role:     users.RoleViewer,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.IsActive || created.Role != users.RoleViewer {
		t.Errorf("created: got %+v", created)
	}

	byName, err := store.FindByUsername(ctx, "operator")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if byName.ID != created.ID || !users.CheckPassword(byName.PasswordHash, "hunter2") {
		t.Errorf("found: got %+v", byName)
	}

	byEmail, err := store.FindByEmail(ctx, "operator@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Errorf("FindByEmail: got %+v, %v", byEmail, err)
	}

	_, err = store.Create(ctx, users.CreateCommand{
		Username: "operator",
		Email:    "other@example.com",
		Password: "x",
		Role:     users.RoleViewer,
	})
	if !errors.Is(err, users.ErrDuplicate) {
		t.Errorf("duplicate: got %v, want ErrDuplicate", err)
	}

	if _, err := store.Create(ctx, users.CreateCommand{Username: "x", Email: "x@example.com", Password: "x", Role: "root"}); !errors.Is(err, users.ErrInvalidRole) {
		t.Errorf("invalid role: got %v, want ErrInvalidRole", err)
	}

	if _, err := store.FindByUsername(ctx, "missing"); !errors.Is(err, users.ErrNotFound) {
		t.Errorf("missing: got %v, want ErrNotFound", err)
	}
}
