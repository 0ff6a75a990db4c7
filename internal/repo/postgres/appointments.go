package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hospivibe/clinic/internal/domain/appointment"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `id, patient_id, doctor_id, slot_date, slot_time, reason, status, doctor_notes, created_at, updated_at`

type AppointmentsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewAppointmentsRepo(pool *pgxpool.Pool, prom *observability.Prom) *AppointmentsRepo {
	return &AppointmentsRepo{pool: pool, prom: prom}
}

func (r *AppointmentsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanAppointment(row pgx.Row) (appointment.Appointment, error) {
	var a appointment.Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&a.Time,
		&a.Reason,
		&a.Status,
		&a.DoctorNotes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (r *AppointmentsRepo) Create(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	err := r.observe("appointments.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO appointments (`+appointmentColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, a.Reason, string(a.Status), a.DoctorNotes, a.CreatedAt, a.UpdatedAt,
		)
		return err
	})

	if err != nil {
		switch {
		case IsUniqueViolation(err, "appointments_active_slot_uniq"):
			return appointment.Appointment{}, appointment.ErrSlotTaken
		case IsForeignKeyViolation(err):
			// the doctor or patient row went away between lookup and insert
			return appointment.Appointment{}, user.ErrNotFound
		}
		return appointment.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentsRepo) GetByID(ctx context.Context, id string) (appointment.Appointment, error) {
	if !validID(id) {
		return appointment.Appointment{}, appointment.ErrNotFound
	}

	var a appointment.Appointment
	err := r.observe("appointments.get_by_id", func() error {
		var err error
		a, err = scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return appointment.Appointment{}, appointment.ErrNotFound
		}
		return appointment.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentsRepo) List(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	op := "appointments.list"

	var conds []string
	var args []interface{}
	argsPosition := 1

	if f.PatientID != nil {
		if !validID(*f.PatientID) {
			return []appointment.Appointment{}, nil
		}
		conds = append(conds, fmt.Sprintf("patient_id = $%d", argsPosition))
		args = append(args, *f.PatientID)
		argsPosition++
	}

	if f.DoctorID != nil {
		if !validID(*f.DoctorID) {
			return []appointment.Appointment{}, nil
		}
		conds = append(conds, fmt.Sprintf("doctor_id = $%d", argsPosition))
		args = append(args, *f.DoctorID)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	var rows pgx.Rows
	err := r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, query, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]appointment.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		if r.prom != nil {
			r.prom.DbErrorsTotal.WithLabelValues(op, "rows_err").Inc()
		}
		return nil, err
	}
	return out, nil
}

// Update writes req only if the row still carries status from. A miss is
// resolved into ErrNotFound or ErrStatusChanged with a follow-up read.
func (r *AppointmentsRepo) Update(ctx context.Context, id string, from appointment.Status, req appointment.UpdateRequest) (appointment.Appointment, error) {
	if !validID(id) {
		return appointment.Appointment{}, appointment.ErrNotFound
	}

	var status *string
	if req.Status != nil {
		s := string(*req.Status)
		status = &s
	}

	var a appointment.Appointment
	err := r.observe("appointments.update", func() error {
		var err error
		a, err = scanAppointment(r.pool.QueryRow(ctx,
			`UPDATE appointments
			 SET status = COALESCE($3, status),
			     doctor_notes = CASE WHEN $6 THEN NULL ELSE COALESCE($4, doctor_notes) END,
			     updated_at = $5
			 WHERE id = $1 AND status = $2
			 RETURNING `+appointmentColumns,
			id, string(from), status, req.DoctorNotes, time.Now().UTC(), req.ClearNotes,
		))
		return err
	})

	if err == nil {
		return a, nil
	}

	if IsUniqueViolation(err, "appointments_active_slot_uniq") {
		return appointment.Appointment{}, appointment.ErrSlotTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return appointment.Appointment{}, err
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return appointment.Appointment{}, err
	}
	return appointment.Appointment{}, appointment.ErrStatusChanged
}

func (r *AppointmentsRepo) CreateLegacy(ctx context.Context, b appointment.LegacyBooking) (appointment.LegacyBooking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	err := r.observe("legacy_appointments.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO legacy_appointments (id, patient_email, specialty, doctor, slot_date, slot_time, reason, status, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			b.ID, b.PatientEmail, b.Specialty, b.Doctor, b.Date, b.Time, b.Reason, string(b.Status), b.CreatedAt,
		)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err, "legacy_appointments_slot_uniq") {
			return appointment.LegacyBooking{}, appointment.ErrSlotTaken
		}
		return appointment.LegacyBooking{}, err
	}
	return b, nil
}
