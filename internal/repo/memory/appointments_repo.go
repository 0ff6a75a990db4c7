package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hospivibe/clinic/internal/domain/appointment"
)

type slotKey struct {
	doctor, date, time string
}

// AppointmentsRepo enforces one active booking per slot under its mutex,
// mirroring the unique indexes of the persistent drivers.
type AppointmentsRepo struct {
	mu          sync.RWMutex
	items       map[string]appointment.Appointment
	activeSlots map[slotKey]string
	legacy      map[string]appointment.LegacyBooking
	legacySlots map[slotKey]string
}

func NewAppointmentsRepo() *AppointmentsRepo {
	return &AppointmentsRepo{
		items:       make(map[string]appointment.Appointment),
		activeSlots: make(map[slotKey]string),
		legacy:      make(map[string]appointment.LegacyBooking),
		legacySlots: make(map[slotKey]string),
	}
}

func keyOf(a appointment.Appointment) slotKey {
	return slotKey{doctor: a.DoctorID, date: a.Date, time: a.Time}
}

func (r *AppointmentsRepo) Create(_ context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Active() {
		if _, taken := r.activeSlots[keyOf(a)]; taken {
			return appointment.Appointment{}, appointment.ErrSlotTaken
		}
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	r.items[a.ID] = a
	if a.Active() {
		r.activeSlots[keyOf(a)] = a.ID
	}
	return a, nil
}

func (r *AppointmentsRepo) GetByID(_ context.Context, id string) (appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return appointment.Appointment{}, appointment.ErrNotFound
	}
	return a, nil
}

func (r *AppointmentsRepo) List(_ context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]appointment.Appointment, 0)
	for _, a := range r.items {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies req only while the stored status still equals from.
func (r *AppointmentsRepo) Update(_ context.Context, id string, from appointment.Status, req appointment.UpdateRequest) (appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return appointment.Appointment{}, appointment.ErrNotFound
	}
	if a.Status != from {
		return appointment.Appointment{}, appointment.ErrStatusChanged
	}

	next := a
	if req.Status != nil {
		next.Status = *req.Status
	}
	switch {
	case req.DoctorNotes != nil:
		notes := *req.DoctorNotes
		next.DoctorNotes = &notes
	case req.ClearNotes:
		next.DoctorNotes = nil
	}
	next.UpdatedAt = time.Now().UTC()

	k := keyOf(a)
	switch {
	case a.Active() && !next.Active():
		delete(r.activeSlots, k)
	case !a.Active() && next.Active():
		if _, taken := r.activeSlots[k]; taken {
			return appointment.Appointment{}, appointment.ErrSlotTaken
		}
		r.activeSlots[k] = id
	}

	r.items[id] = next
	return next, nil
}

func (r *AppointmentsRepo) CreateLegacy(_ context.Context, b appointment.LegacyBooking) (appointment.LegacyBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := slotKey{doctor: b.Doctor, date: b.Date, time: b.Time}
	if _, taken := r.legacySlots[k]; taken {
		return appointment.LegacyBooking{}, appointment.ErrSlotTaken
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	r.legacy[b.ID] = b
	r.legacySlots[k] = b.ID
	return b, nil
}
