package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes confirmations to the structured log instead of a mail provider.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendBookingConfirmation(ctx context.Context, in BookingConfirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.booking_confirmation",
		"email", in.PatientEmail,
		"patient", in.PatientName,
		"doctor", in.DoctorName,
		"appointment_id", in.AppointmentID,
		"date", in.Date,
		"time", in.Time,
	)
	return nil
}
