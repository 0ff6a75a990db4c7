package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/hospivibe/clinic/internal/domain/appointment"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// appointmentDoc mirrors the stored document. Active duplicates
// status != cancelled so the partial unique index can key on it.
type appointmentDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	PatientID   primitive.ObjectID `bson:"patient_id"`
	DoctorID    primitive.ObjectID `bson:"doctor_id"`
	Date        string             `bson:"date"`
	Time        string             `bson:"time"`
	Reason      string             `bson:"reason"`
	Status      string             `bson:"status"`
	Active      bool               `bson:"active"`
	DoctorNotes *string            `bson:"doctor_notes,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (d appointmentDoc) toDomain() appointment.Appointment {
	return appointment.Appointment{
		ID:          d.ID.Hex(),
		PatientID:   d.PatientID.Hex(),
		DoctorID:    d.DoctorID.Hex(),
		Date:        d.Date,
		Time:        d.Time,
		Reason:      d.Reason,
		Status:      appointment.Status(d.Status),
		DoctorNotes: d.DoctorNotes,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// legacyStatus is the status string older clients stored for free-text
// bookings; it is kept so existing readers of the collection see one shape.
const legacyStatus = "Scheduled"

type legacyDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	PatientEmail string             `bson:"patientEmail"`
	Specialty    string             `bson:"specialty"`
	Doctor       string             `bson:"doctor"`
	Date         string             `bson:"date"`
	Time         string             `bson:"time"`
	Reason       string             `bson:"reason"`
	Status       string             `bson:"status"`
	CreatedAt    time.Time          `bson:"created_at"`
}

type AppointmentsRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewAppointmentsRepo(db *mongo.Database, prom *observability.Prom) *AppointmentsRepo {
	return &AppointmentsRepo{coll: db.Collection(AppointmentsCollection), prom: prom}
}

func (r *AppointmentsRepo) Create(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	patient, ok := objectID(a.PatientID)
	if !ok {
		return appointment.Appointment{}, user.ErrNotFound
	}
	doctor, ok := objectID(a.DoctorID)
	if !ok {
		return appointment.Appointment{}, user.ErrNotFound
	}

	doc := appointmentDoc{
		ID:          primitive.NewObjectID(),
		PatientID:   patient,
		DoctorID:    doctor,
		Date:        a.Date,
		Time:        a.Time,
		Reason:      a.Reason,
		Status:      string(a.Status),
		Active:      a.Active(),
		DoctorNotes: a.DoctorNotes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}

	err := observe(r.prom, "appointments.create", func() error {
		_, err := r.coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		if isDuplicateOn(err, activeSlotIndex) {
			return appointment.Appointment{}, appointment.ErrSlotTaken
		}
		return appointment.Appointment{}, err
	}

	return doc.toDomain(), nil
}

func (r *AppointmentsRepo) GetByID(ctx context.Context, id string) (appointment.Appointment, error) {
	oid, ok := objectID(id)
	if !ok {
		return appointment.Appointment{}, appointment.ErrNotFound
	}

	var doc appointmentDoc
	err := observe(r.prom, "appointments.get_by_id", func() error {
		return r.coll.FindOne(ctx, bson.M{"_id": oid, "patient_id": bson.M{"$exists": true}}).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return appointment.Appointment{}, appointment.ErrNotFound
		}
		return appointment.Appointment{}, err
	}
	return doc.toDomain(), nil
}

// List skips legacy bookings, which have no patient_id.
func (r *AppointmentsRepo) List(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	filter := bson.M{"patient_id": bson.M{"$exists": true}}

	if f.PatientID != nil {
		oid, ok := objectID(*f.PatientID)
		if !ok {
			return []appointment.Appointment{}, nil
		}
		filter["patient_id"] = oid
	}

	if f.DoctorID != nil {
		oid, ok := objectID(*f.DoctorID)
		if !ok {
			return []appointment.Appointment{}, nil
		}
		filter["doctor_id"] = oid
	}

	var docs []appointmentDoc
	err := observe(r.prom, "appointments.list", func() error {
		cur, err := r.coll.Find(ctx, filter, createdAsc)
		if err != nil {
			return err
		}
		return cur.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	out := make([]appointment.Appointment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Update matches on the previous status so a concurrent writer cannot be
// silently overwritten.
func (r *AppointmentsRepo) Update(ctx context.Context, id string, from appointment.Status, req appointment.UpdateRequest) (appointment.Appointment, error) {
	oid, ok := objectID(id)
	if !ok {
		return appointment.Appointment{}, appointment.ErrNotFound
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if req.Status != nil {
		set["status"] = string(*req.Status)
		set["active"] = *req.Status != appointment.StatusCancelled
	}
	switch {
	case req.DoctorNotes != nil:
		set["doctor_notes"] = *req.DoctorNotes
	case req.ClearNotes:
		set["doctor_notes"] = nil
	}

	var doc appointmentDoc
	err := observe(r.prom, "appointments.update", func() error {
		return r.coll.FindOneAndUpdate(ctx,
			bson.M{"_id": oid, "status": string(from)},
			bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
	})

	if err == nil {
		return doc.toDomain(), nil
	}

	if isDuplicateOn(err, activeSlotIndex) {
		return appointment.Appointment{}, appointment.ErrSlotTaken
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return appointment.Appointment{}, err
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return appointment.Appointment{}, err
	}
	return appointment.Appointment{}, appointment.ErrStatusChanged
}

func (r *AppointmentsRepo) CreateLegacy(ctx context.Context, b appointment.LegacyBooking) (appointment.LegacyBooking, error) {
	doc := legacyDoc{
		ID:           primitive.NewObjectID(),
		PatientEmail: b.PatientEmail,
		Specialty:    b.Specialty,
		Doctor:       b.Doctor,
		Date:         b.Date,
		Time:         b.Time,
		Reason:       b.Reason,
		Status:       legacyStatus,
		CreatedAt:    b.CreatedAt,
	}

	err := observe(r.prom, "appointments.create_legacy", func() error {
		_, err := r.coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		if isDuplicateOn(err, legacySlotIndex) {
			return appointment.LegacyBooking{}, appointment.ErrSlotTaken
		}
		return appointment.LegacyBooking{}, err
	}

	b.ID = doc.ID.Hex()
	return b, nil
}
