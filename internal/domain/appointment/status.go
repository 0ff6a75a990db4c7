package appointment

import (
	"fmt"

	"github.com/hospivibe/clinic/internal/domain/user"
)

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether next may follow s. Rewriting the current
// status is accepted as a no-op.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo returns ErrInvalidTransition, wrapped with the offending pair,
// when next may not follow s.
func (s Status) TransitionTo(next Status) error {
	if s.CanTransitionTo(next) {
		return nil
	}
	if s.Terminal() {
		return fmt.Errorf("%w: %s is final", ErrInvalidTransition, s)
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s, next)
}

// Authorize applies the field-level permission rules for an update by actor.
// It does not check the status transition itself.
func Authorize(actor user.User, a Appointment, req UpdateRequest) error {
	switch actor.Role {
	case user.RoleDoctor:
		if a.DoctorID != actor.ID {
			return ErrNotParticipant
		}
		return nil

	case user.RolePatient:
		if a.PatientID != actor.ID {
			return ErrNotParticipant
		}
		if req.TouchesNotes() {
			return ErrNotesForbidden
		}
		if req.Status != nil && *req.Status != StatusCancelled {
			return ErrPatientStatus
		}
		return nil

	default:
		return ErrRoleNotAllowed
	}
}
