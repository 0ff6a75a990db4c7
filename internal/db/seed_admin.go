package db

import (
	"context"
	"errors"
	"time"

	"github.com/hospivibe/clinic/internal/config"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/security"
)

type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

// EnsureAdminUser creates the configured admin account if it does not exist yet.
// It is a no-op when ADMIN_EMAIL or ADMIN_PASSWORD is unset.
func EnsureAdminUser(ctx context.Context, users AdminStore, cfg config.Config) (created bool, err error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, nil
	}

	_, err = users.GetByEmail(ctx, cfg.AdminEmail)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return false, err
	}

	u := user.User{
		Email:              user.NormalizeEmail(cfg.AdminEmail),
		PasswordHash:       hash,
		Name:               cfg.AdminName,
		Role:               user.RoleAdmin,
		CreatedAt:          time.Now().UTC(),
		OnboardingComplete: true,
	}

	_, err = users.Create(ctx, u)

	// another replica won the race
	if errors.Is(err, user.ErrEmailTaken) {
		return false, nil
	}

	return err == nil, err
}
