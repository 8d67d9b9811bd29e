package service

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/auth-session/internal/model"
)

// BootstrapUser is an account created at startup when missing.
type BootstrapUser struct {
	ID       string
	Email    string
	Password string
	Role     model.Role
}

// DevUsers are the development accounts.  Never enable them outside a
// development environment.
var DevUsers = []BootstrapUser{
	{ID: "admin-1", Email: "admin", Password: "123", Role: model.RoleAdmin},
	{ID: "worker-1", Email: "worker", Password: "123", Role: model.RoleWorker},
}

// UserSeeder creates a user unless one with the same email already exists.
type UserSeeder interface {
	UpsertBootstrapUser(ctx context.Context, id, email, plainPassword string, role model.Role) (model.User, error)
}

// SeedUsers upserts every user in users.  Existing accounts are left
// untouched, so running it on each start is safe.
func SeedUsers(ctx context.Context, store UserSeeder, users []BootstrapUser, l *log.Logger) error {
	for _, u := range users {
		got, err := store.UpsertBootstrapUser(ctx, u.ID, u.Email, u.Password, u.Role)
		if err != nil {
			return fmt.Errorf("seed %s: %w", u.Email, err)
		}
		l.Infoj(log.JSON{"event": "bootstrap_user", "id": got.ID, "email": got.Email, "role": got.Role})
	}
	return nil
}
