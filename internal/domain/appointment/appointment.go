package appointment

import (
	"errors"
	"time"

	"github.com/hospivibe/clinic/internal/domain/user"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrSlotTaken         = errors.New("time slot already booked")
	ErrStatusChanged     = errors.New("appointment status changed concurrently")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrNotParticipant    = errors.New("requester is not a participant of the appointment")
	ErrNotesForbidden    = errors.New("patients cannot add doctor notes")
	ErrPatientStatus     = errors.New("patients can only cancel appointments")
	ErrRoleNotAllowed    = errors.New("role cannot update appointments")
)

type Appointment struct {
	ID          string    `json:"_id"`
	PatientID   string    `json:"patient_id"`
	DoctorID    string    `json:"doctor_id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Reason      string    `json:"reason"`
	Status      Status    `json:"status"`
	DoctorNotes *string   `json:"doctor_notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Active appointments occupy their slot.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// Enriched is a list row with participant summaries attached.
type Enriched struct {
	Appointment
	Patient *user.Summary `json:"patient,omitempty"`
	Doctor  *user.Summary `json:"doctor,omitempty"`
}

// Created is the shape returned right after booking.
type Created struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Reason    string `json:"reason"`
	Status    Status `json:"status"`
}

func (a Appointment) CreatedView() Created {
	return Created{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      a.Date,
		Time:      a.Time,
		Reason:    a.Reason,
		Status:    a.Status,
	}
}

type CreateRequest struct {
	DoctorID  string `json:"doctor_id" binding:"required,max=64"`
	Date      string `json:"date" binding:"required,datetime=2006-01-02"`
	Time      string `json:"time" binding:"required,max=32"`
	Reason    string `json:"reason" binding:"required,max=1000"`
	PatientID string `json:"-"`
}

func NewFromCreateRequest(req CreateRequest) Appointment {
	now := time.Now().UTC()

	return Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		Time:      req.Time,
		Reason:    req.Reason,
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UpdateRequest carries the mutable fields; nil means "leave unchanged".
// ClearNotes is set when the body sends "doctor_notes": null, which erases
// the stored notes.
type UpdateRequest struct {
	Status      *Status `json:"status" binding:"omitempty,oneof=scheduled confirmed completed cancelled no_show"`
	DoctorNotes *string `json:"doctor_notes" binding:"omitempty,max=4000"`
	ClearNotes  bool    `json:"-"`
}

// TouchesNotes reports whether the update writes doctor_notes at all.
func (r UpdateRequest) TouchesNotes() bool {
	return r.DoctorNotes != nil || r.ClearNotes
}

func (r UpdateRequest) Empty() bool {
	return r.Status == nil && !r.TouchesNotes()
}

// ListFilter narrows a listing; nil fields do not filter.
type ListFilter struct {
	PatientID *string
	DoctorID  *string
}

// LegacyBooking is the free-text booking kept for older clients.
type LegacyBooking struct {
	ID           string    `json:"_id"`
	PatientEmail string    `json:"patient_email"`
	Specialty    string    `json:"specialty"`
	Doctor       string    `json:"doctor"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Reason       string    `json:"reason"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type LegacyRequest struct {
	Specialty string `json:"specialty" binding:"required,max=120"`
	Doctor    string `json:"doctor" binding:"required,max=120"`
	Date      string `json:"date" binding:"required,max=32"`
	Time      string `json:"time" binding:"required,max=32"`
	Reason    string `json:"reason" binding:"required,max=1000"`
}

type LegacyDetails struct {
	Specialty string `json:"specialty"`
	Doctor    string `json:"doctor"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Reason    string `json:"reason"`
}

func NewLegacyBooking(req LegacyRequest, patientEmail string) LegacyBooking {
	return LegacyBooking{
		PatientEmail: patientEmail,
		Specialty:    req.Specialty,
		Doctor:       req.Doctor,
		Date:         req.Date,
		Time:         req.Time,
		Reason:       req.Reason,
		Status:       StatusScheduled,
		CreatedAt:    time.Now().UTC(),
	}
}

func (b LegacyBooking) Details() LegacyDetails {
	return LegacyDetails{
		Specialty: b.Specialty,
		Doctor:    b.Doctor,
		Date:      b.Date,
		Time:      b.Time,
		Reason:    b.Reason,
	}
}
