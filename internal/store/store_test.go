package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hospivibe/clinic/internal/config"
	"github.com/hospivibe/clinic/internal/db"
	"github.com/hospivibe/clinic/internal/domain/appointment"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Every driver must satisfy the same behaviour. Postgres and MongoDB run
// only when TEST_DB_DSN / TEST_MONGO_URI point at a disposable server.
func TestStoreContract(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		runContract(t, store.NewMemory())
	})

	t.Run("postgres", func(t *testing.T) {
		dsn := os.Getenv("TEST_DB_DSN")
		if dsn == "" {
			t.Skip("TEST_DB_DSN not set")
		}

		ctx := context.Background()
		s, err := store.Open(ctx, config.Config{StoreDriver: config.StorePostgres, DBURL: dsn}, nil, quietLogger())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close(context.Background()) })

		pool, err := db.NewPool(ctx, db.PoolConfig{URL: dsn, MaxConns: 4})
		if err != nil {
			t.Fatalf("pool: %v", err)
		}
		defer pool.Close()
		if _, err := pool.Exec(ctx, `TRUNCATE legacy_appointments, appointments, users CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}

		runContract(t, s)
	})

	t.Run("mongodb", func(t *testing.T) {
		uri := os.Getenv("TEST_MONGO_URI")
		if uri == "" {
			t.Skip("TEST_MONGO_URI not set")
		}

		ctx := context.Background()
		dbName := "clinic_test_" + uuid.NewString()[:8]

		s, err := store.Open(ctx, config.Config{StoreDriver: config.StoreMongo, MongoURI: uri, MongoDatabase: dbName}, nil, quietLogger())
		if err != nil {
			t.Fatalf("open: %v", err)
		}

		client, err := db.NewMongo(ctx, uri)
		if err != nil {
			t.Fatalf("client: %v", err)
		}
		t.Cleanup(func() {
			_ = client.Database(dbName).Drop(context.Background())
			_ = client.Disconnect(context.Background())
			_ = s.Close(context.Background())
		})

		runContract(t, s)
	})
}

func runContract(t *testing.T, s *store.Store) {
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	mk := func(name, email string, role user.Role) user.User {
		u, err := s.Users.Create(ctx, user.User{Name: name, Email: email, PasswordHash: "$2a$10$hash", Role: role, CreatedAt: now})
		if err != nil {
			t.Fatalf("create %s: %v", email, err)
		}
		return u
	}

	pat := mk("Pat", "Pat@Clinic.com", user.RolePatient)
	doc := mk("Doc", "doc@clinic.com", user.RoleDoctor)
	other := mk("Other", "other@clinic.com", user.RolePatient)

	t.Run("users", func(t *testing.T) {
		if _, err := s.Users.Create(ctx, user.User{Name: "Dup", Email: "pat@clinic.com", Role: user.RoleNurse, CreatedAt: now}); !errors.Is(err, user.ErrEmailTaken) {
			t.Fatalf("duplicate email: %v", err)
		}

		got, err := s.Users.GetByEmail(ctx, "PAT@clinic.com")
		if err != nil || got.ID != pat.ID || got.PasswordHash != "$2a$10$hash" {
			t.Fatalf("get by email: %+v %v", got, err)
		}

		if _, err := s.Users.GetByID(ctx, "not-an-id"); !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("malformed id should be a miss, got %v", err)
		}

		doctors, err := s.Users.ListByRole(ctx, user.RoleDoctor)
		if err != nil || len(doctors) != 1 || doctors[0].ID != doc.ID {
			t.Fatalf("list doctors: %+v %v", doctors, err)
		}

		batch, err := s.Users.ListByIDs(ctx, []string{pat.ID, doc.ID, "garbage"})
		if err != nil || len(batch) != 2 {
			t.Fatalf("list by ids: %+v %v", batch, err)
		}

		if err := s.Users.CompleteOnboarding(ctx, pat.ID); err != nil {
			t.Fatalf("onboard: %v", err)
		}
		if err := s.Users.CompleteOnboarding(ctx, pat.ID); err != nil {
			t.Fatalf("repeat onboard: %v", err)
		}
		got, _ = s.Users.GetByID(ctx, pat.ID)
		if !got.OnboardingComplete {
			t.Fatalf("onboarding flag not stored")
		}
	})

	t.Run("appointments", func(t *testing.T) {
		newAppt := func(patientID string) appointment.Appointment {
			return appointment.NewFromCreateRequest(appointment.CreateRequest{
				DoctorID: doc.ID, PatientID: patientID, Date: "2026-03-01", Time: "09:00", Reason: "checkup",
			})
		}

		a, err := s.Appointments.Create(ctx, newAppt(pat.ID))
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		if _, err := s.Appointments.Create(ctx, newAppt(other.ID)); !errors.Is(err, appointment.ErrSlotTaken) {
			t.Fatalf("double booking: %v", err)
		}

		mine, err := s.Appointments.List(ctx, appointment.ListFilter{PatientID: &pat.ID})
		if err != nil || len(mine) != 1 || mine[0].ID != a.ID {
			t.Fatalf("list own: %+v %v", mine, err)
		}

		notes := "fasting"
		confirmed := appointment.StatusConfirmed
		updated, err := s.Appointments.Update(ctx, a.ID, appointment.StatusScheduled, appointment.UpdateRequest{Status: &confirmed, DoctorNotes: &notes})
		if err != nil || updated.Status != appointment.StatusConfirmed || updated.DoctorNotes == nil || *updated.DoctorNotes != notes {
			t.Fatalf("update: %+v %v", updated, err)
		}

		if _, err := s.Appointments.Update(ctx, a.ID, appointment.StatusScheduled, appointment.UpdateRequest{DoctorNotes: &notes}); !errors.Is(err, appointment.ErrStatusChanged) {
			t.Fatalf("stale update: %v", err)
		}

		cleared, err := s.Appointments.Update(ctx, a.ID, appointment.StatusConfirmed, appointment.UpdateRequest{ClearNotes: true})
		if err != nil || cleared.DoctorNotes != nil || cleared.Status != appointment.StatusConfirmed {
			t.Fatalf("clear notes: %+v %v", cleared, err)
		}

		cancelled := appointment.StatusCancelled
		if _, err := s.Appointments.Update(ctx, a.ID, appointment.StatusConfirmed, appointment.UpdateRequest{Status: &cancelled}); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		if _, err := s.Appointments.Create(ctx, newAppt(other.ID)); err != nil {
			t.Fatalf("slot should reopen after cancellation: %v", err)
		}

		if _, err := s.Appointments.GetByID(ctx, "nope"); !errors.Is(err, appointment.ErrNotFound) {
			t.Fatalf("get missing: %v", err)
		}
	})

	t.Run("concurrent booking", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make(chan error, 10)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Appointments.Create(ctx, appointment.NewFromCreateRequest(appointment.CreateRequest{
					DoctorID: doc.ID, PatientID: pat.ID, Date: "2026-04-01", Time: "11:00", Reason: "race",
				}))
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			switch {
			case err == nil:
				wins++
			case !errors.Is(err, appointment.ErrSlotTaken):
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Fatalf("expected one winner, got %d", wins)
		}
	})

	t.Run("legacy", func(t *testing.T) {
		req := appointment.LegacyRequest{Specialty: "Cardiology", Doctor: "Dr. House", Date: "2026-03-01", Time: "09:00", Reason: "pain"}

		b, err := s.Appointments.CreateLegacy(ctx, appointment.NewLegacyBooking(req, pat.Email))
		if err != nil || b.ID == "" {
			t.Fatalf("legacy create: %+v %v", b, err)
		}
		if _, err := s.Appointments.CreateLegacy(ctx, appointment.NewLegacyBooking(req, other.Email)); !errors.Is(err, appointment.ErrSlotTaken) {
			t.Fatalf("legacy double booking: %v", err)
		}

		all, err := s.Appointments.List(ctx, appointment.ListFilter{})
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		for _, a := range all {
			if a.PatientID == "" {
				t.Fatalf("legacy bookings must not appear in the appointment listing: %+v", a)
			}
		}
	})
}
