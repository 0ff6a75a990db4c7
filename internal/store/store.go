// Package store opens the configured persistence driver and exposes it
// through driver-neutral interfaces.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hospivibe/clinic/internal/config"
	"github.com/hospivibe/clinic/internal/db"
	"github.com/hospivibe/clinic/internal/domain/appointment"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/observability"
	"github.com/hospivibe/clinic/internal/repo/memory"
	"github.com/hospivibe/clinic/internal/repo/mongodb"
	"github.com/hospivibe/clinic/internal/repo/postgres"
)

type Users interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	ListByRole(ctx context.Context, role user.Role) ([]user.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]user.User, error)
	CompleteOnboarding(ctx context.Context, id string) error
}

type Appointments interface {
	Create(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
	GetByID(ctx context.Context, id string) (appointment.Appointment, error)
	List(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error)
	Update(ctx context.Context, id string, from appointment.Status, req appointment.UpdateRequest) (appointment.Appointment, error)
	CreateLegacy(ctx context.Context, b appointment.LegacyBooking) (appointment.LegacyBooking, error)
}

type Store struct {
	Driver       string
	Users        Users
	Appointments Appointments

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// NewMemory returns a process-local store.
func NewMemory() *Store {
	return &Store{
		Driver:       config.StoreMemory,
		Users:        memory.NewUsersRepo(),
		Appointments: memory.NewAppointmentsRepo(),
	}
}

// Open connects to the driver named by cfg.StoreDriver and prepares its
// schema (Postgres migrations or MongoDB indexes).
func Open(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return NewMemory(), nil

	case config.StorePostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:             cfg.DBURL,
			MaxConns:        int32(cfg.DBMaxConns),
			MaxConnLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		if err := db.Migrate(pool, log); err != nil {
			pool.Close()
			return nil, err
		}

		return &Store{
			Driver:       config.StorePostgres,
			Users:        postgres.NewUsersRepo(pool, prom),
			Appointments: postgres.NewAppointmentsRepo(pool, prom),
			ping:         pool.Ping,
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case config.StoreMongo:
		client, err := db.NewMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}

		database := client.Database(cfg.MongoDatabase)

		if err := mongodb.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure mongodb indexes: %w", err)
		}

		return &Store{
			Driver:       config.StoreMongo,
			Users:        mongodb.NewUsersRepo(database, prom),
			Appointments: mongodb.NewAppointmentsRepo(database, prom),
			ping: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
			close: client.Disconnect,
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
