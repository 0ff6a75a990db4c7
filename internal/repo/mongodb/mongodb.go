// Package mongodb stores users and appointments in MongoDB using the document
// layout of the existing clinic database: ObjectID keys, bcrypt bytes under
// "password" and both booking kinds in the "appointments" collection.
package mongodb

import (
	"context"
	"fmt"
	"strings"

	"github.com/hospivibe/clinic/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection        = "users"
	AppointmentsCollection = "appointments"

	usersEmailIndex        = "users_email_uniq"
	activeSlotIndex        = "appointments_active_slot_uniq"
	legacySlotIndex        = "appointments_legacy_slot_uniq"
	patientAppointmentsIdx = "appointments_patient_created"
	doctorAppointmentsIdx  = "appointments_doctor_created"
)

// EnsureIndexes creates the indexes the stores rely on for uniqueness.
// CreateMany is idempotent for identical specs.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(usersEmailIndex).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("users_role_created"),
		},
	})
	if err != nil {
		return err
	}

	if err := backfillActive(ctx, db.Collection(AppointmentsCollection)); err != nil {
		return err
	}

	_, err = db.Collection(AppointmentsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "date", Value: 1}, {Key: "time", Value: 1}},
			Options: options.Index().
				SetName(activeSlotIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys: bson.D{{Key: "doctor", Value: 1}, {Key: "date", Value: 1}, {Key: "time", Value: 1}},
			Options: options.Index().
				SetName(legacySlotIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"doctor": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName(patientAppointmentsIdx),
		},
		{
			Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName(doctorAppointmentsIdx),
		},
	})
	return err
}

// backfillActive derives the "active" flag for appointment documents written
// without it, so the partial slot index covers them. Legacy bookings carry no
// patient_id and are left alone.
func backfillActive(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.UpdateMany(ctx,
		bson.M{"patient_id": bson.M{"$exists": true}, "active": bson.M{"$exists": false}},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{"active": bson.M{"$ne": bson.A{"$status", "cancelled"}}}}},
		},
	)
	if err != nil {
		return fmt.Errorf("backfill active flag: %w", err)
	}
	return nil
}

func observe(prom *observability.Prom, op string, fn func() error) error {
	if prom != nil {
		return prom.ObserveDB(op, fn)
	}
	return fn()
}

// isDuplicateOn reports a duplicate key error raised by the named index.
func isDuplicateOn(err error, index string) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), index)
}

// objectID parses hex ids; ok is false for anything that is not an ObjectID.
func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

var createdAsc = options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
