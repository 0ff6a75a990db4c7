package notifications

import "context"

// BookingConfirmation is what a patient is told after a slot is booked.
type BookingConfirmation struct {
	PatientEmail  string
	PatientName   string
	DoctorName    string
	AppointmentID string
	Date          string
	Time          string
}

type Notifier interface {
	SendBookingConfirmation(ctx context.Context, in BookingConfirmation) error
}
