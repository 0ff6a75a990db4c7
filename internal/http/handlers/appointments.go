package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hospivibe/clinic/internal/config"
	"github.com/hospivibe/clinic/internal/domain/appointment"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/http/middlewares"
	"github.com/hospivibe/clinic/internal/notifications"
)

type AppointmentStore interface {
	Create(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
	GetByID(ctx context.Context, id string) (appointment.Appointment, error)
	List(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error)
	Update(ctx context.Context, id string, from appointment.Status, req appointment.UpdateRequest) (appointment.Appointment, error)
	CreateLegacy(ctx context.Context, b appointment.LegacyBooking) (appointment.LegacyBooking, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]user.User, error)
}

type AppointmentsHandler struct {
	appointments AppointmentStore
	users        UserLookup
	timeout      time.Duration
	notifier     notifications.Notifier
}

func NewAppointmentsHandler(appointments AppointmentStore, users UserLookup, timeout time.Duration) *AppointmentsHandler {
	return &AppointmentsHandler{
		appointments: appointments,
		users:        users,
		timeout:      timeout,
	}
}

// WithNotifier sends a confirmation after each successful booking.
func (h *AppointmentsHandler) WithNotifier(n notifications.Notifier) *AppointmentsHandler {
	h.notifier = n
	return h
}

// notify is best effort: a booking is never failed by its confirmation.
func (h *AppointmentsHandler) notify(ctx context.Context, in notifications.BookingConfirmation) {
	if h.notifier == nil {
		return
	}

	if err := h.notifier.SendBookingConfirmation(ctx, in); err != nil {
		slog.WarnContext(ctx, "booking confirmation not sent",
			"appointment_id", in.AppointmentID,
			"err", err,
		)
	}
}

func (h *AppointmentsHandler) Create(ctx *gin.Context) {
	caller, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req appointment.CreateRequest

	if !BindJSONWithFields(ctx, &req, "doctor_id", "date", "time", "reason") {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	doctor, err := h.users.GetByID(cctx, req.DoctorID)

	if err != nil && !errors.Is(err, user.ErrNotFound) {
		RespondInternal(ctx, "Could not schedule appointment", err)
		return
	}

	if err != nil || doctor.Role != user.RoleDoctor {
		RespondNotFound(ctx, "doctor_not_found", "Doctor not found")
		return
	}

	req.PatientID = caller.ID

	a, err := h.appointments.Create(cctx, appointment.NewFromCreateRequest(req))

	if err != nil {
		switch {
		case errors.Is(err, appointment.ErrSlotTaken):
			RespondConflict(ctx, "slot_taken", "This time slot is already booked")
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "doctor_not_found", "Doctor not found")
		default:
			RespondInternal(ctx, "Could not schedule appointment", err)
		}
		return
	}

	h.notify(ctx.Request.Context(), notifications.BookingConfirmation{
		PatientEmail:  caller.Email,
		PatientName:   caller.Name,
		DoctorName:    doctor.Name,
		AppointmentID: a.ID,
		Date:          a.Date,
		Time:          a.Time,
	})

	ctx.JSON(http.StatusCreated, gin.H{
		"message":     "Appointment scheduled successfully",
		"appointment": a.CreatedView(),
	})
}

// List returns the caller's appointments with patient and doctor summaries.
// Admins see every appointment; nurses are not participants and get none.
func (h *AppointmentsHandler) List(ctx *gin.Context) {
	caller, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var filter appointment.ListFilter

	switch caller.Role {
	case user.RolePatient:
		filter.PatientID = &caller.ID
	case user.RoleDoctor:
		filter.DoctorID = &caller.ID
	case user.RoleAdmin:
	default:
		RespondJSONWithETag(ctx, http.StatusOK, []appointment.Enriched{})
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	items, err := h.appointments.List(cctx, filter)
	if err != nil {
		RespondInternal(ctx, "Could not list appointments", err)
		return
	}

	out, err := h.enrich(cctx, items)
	if err != nil {
		RespondInternal(ctx, "Could not list appointments", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, out)
}

// enrich resolves every participant with a single batched lookup.
func (h *AppointmentsHandler) enrich(ctx context.Context, items []appointment.Appointment) ([]appointment.Enriched, error) {
	out := make([]appointment.Enriched, 0, len(items))
	if len(items) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(items)*2)
	for _, a := range items {
		ids = append(ids, a.PatientID, a.DoctorID)
	}

	users, err := h.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]user.Summary, len(users))
	for _, u := range users {
		byID[u.ID] = u.Summary()
	}

	for _, a := range items {
		row := appointment.Enriched{Appointment: a}
		if s, ok := byID[a.PatientID]; ok {
			row.Patient = &s
		}
		if s, ok := byID[a.DoctorID]; ok {
			row.Doctor = &s
		}
		out = append(out, row)
	}
	return out, nil
}

func (h *AppointmentsHandler) Update(ctx *gin.Context) {
	caller, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req appointment.UpdateRequest

	keys, ok := BindJSONKeys(ctx, &req)
	if !ok {
		return
	}

	// a null value still names the field, so it counts as an update
	if isNull(keys["status"]) {
		RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": []FieldError{{
			Field: "status", Rule: "required", Message: "must not be null",
		}}})
		return
	}
	if isNull(keys["doctor_notes"]) {
		req.ClearNotes = true
	}

	if req.Empty() {
		RespondBadRequest(ctx, "No fields to update provided", nil)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	id := ctx.Param("id")

	a, err := h.appointments.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			RespondNotFound(ctx, "appointment_not_found", "Appointment not found")
			return
		}
		RespondInternal(ctx, "Failed to update appointment", err)
		return
	}

	if err := appointment.Authorize(caller, a, req); err != nil {
		if errors.Is(err, appointment.ErrNotesForbidden) {
			RespondForbidden(ctx, "Patients cannot add doctor notes")
			return
		}
		if errors.Is(err, appointment.ErrPatientStatus) {
			RespondForbidden(ctx, "Patients can only cancel appointments")
			return
		}
		RespondForbidden(ctx, "Unauthorized")
		return
	}

	if req.Status != nil {
		if err := a.Status.TransitionTo(*req.Status); errors.Is(err, appointment.ErrInvalidTransition) {
			RespondError(ctx, http.StatusConflict, "invalid_transition",
				"Cannot change status from "+string(a.Status)+" to "+string(*req.Status),
				gin.H{"from": a.Status, "to": *req.Status, "final": a.Status.Terminal()})
			return
		}
	}

	_, err = h.appointments.Update(cctx, id, a.Status, req)

	if err != nil {
		switch {
		case errors.Is(err, appointment.ErrNotFound):
			RespondNotFound(ctx, "appointment_not_found", "Appointment not found")
		case errors.Is(err, appointment.ErrStatusChanged):
			RespondConflict(ctx, "appointment_changed", "Appointment was modified by another request; reload and retry")
		case errors.Is(err, appointment.ErrSlotTaken):
			RespondConflict(ctx, "slot_taken", "This time slot is already booked")
		default:
			RespondInternal(ctx, "Failed to update appointment", err)
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Appointment updated successfully"})
}

// Schedule books a free-text slot for older clients. The doctor is a name,
// not a user id, and is not checked.
func (h *AppointmentsHandler) Schedule(ctx *gin.Context) {
	caller, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req appointment.LegacyRequest

	if !BindJSONWithFields(ctx, &req, "specialty", "doctor", "date", "time", "reason") {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	b, err := h.appointments.CreateLegacy(cctx, appointment.NewLegacyBooking(req, caller.Email))

	if err != nil {
		if errors.Is(err, appointment.ErrSlotTaken) {
			RespondConflict(ctx, "slot_taken", "This time slot is already booked")
			return
		}
		RespondInternal(ctx, "Could not schedule appointment", err)
		return
	}

	h.notify(ctx.Request.Context(), notifications.BookingConfirmation{
		PatientEmail:  caller.Email,
		PatientName:   caller.Name,
		DoctorName:    b.Doctor,
		AppointmentID: b.ID,
		Date:          b.Date,
		Time:          b.Time,
	})

	ctx.JSON(http.StatusCreated, gin.H{
		"message":        "Appointment scheduled successfully",
		"appointment_id": b.ID,
		"details":        b.Details(),
	})
}
