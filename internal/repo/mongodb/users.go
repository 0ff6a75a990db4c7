package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type userDoc struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Name               string             `bson:"name"`
	Email              string             `bson:"email"`
	Password           []byte             `bson:"password"`
	Role               string             `bson:"role"`
	CreatedAt          time.Time          `bson:"created_at"`
	OnboardingComplete bool               `bson:"onboarding_complete"`
}

func (d userDoc) toDomain() user.User {
	return user.User{
		ID:                 d.ID.Hex(),
		Name:               d.Name,
		Email:              d.Email,
		PasswordHash:       string(d.Password),
		Role:               user.Role(d.Role),
		CreatedAt:          d.CreatedAt.UTC(),
		OnboardingComplete: d.OnboardingComplete,
	}
}

type UsersRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewUsersRepo(db *mongo.Database, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{coll: db.Collection(UsersCollection), prom: prom}
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	doc := userDoc{
		ID:                 primitive.NewObjectID(),
		Name:               u.Name,
		Email:              user.NormalizeEmail(u.Email),
		Password:           []byte(u.PasswordHash),
		Role:               string(u.Role),
		CreatedAt:          u.CreatedAt,
		OnboardingComplete: u.OnboardingComplete,
	}

	err := observe(r.prom, "users.create", func() error {
		_, err := r.coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		if isDuplicateOn(err, usersEmailIndex) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return doc.toDomain(), nil
}

func (r *UsersRepo) findOne(ctx context.Context, op string, filter bson.M) (user.User, error) {
	var doc userDoc
	err := observe(r.prom, op, func() error {
		return r.coll.FindOne(ctx, filter).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return doc.toDomain(), nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	oid, ok := objectID(id)
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.findOne(ctx, "users.get_by_id", bson.M{"_id": oid})
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_email", bson.M{"email": user.NormalizeEmail(email)})
}

func (r *UsersRepo) ListByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	return r.find(ctx, "users.list_by_role", bson.M{"role": string(role)})
}

func (r *UsersRepo) ListByIDs(ctx context.Context, ids []string) ([]user.User, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, ok := objectID(id); ok {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []user.User{}, nil
	}
	return r.find(ctx, "users.list_by_ids", bson.M{"_id": bson.M{"$in": oids}})
}

func (r *UsersRepo) find(ctx context.Context, op string, filter bson.M) ([]user.User, error) {
	var docs []userDoc
	err := observe(r.prom, op, func() error {
		cur, err := r.coll.Find(ctx, filter, createdAsc)
		if err != nil {
			return err
		}
		return cur.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	out := make([]user.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// CompleteOnboarding decides "missing" on MatchedCount so repeating the
// call on a completed user succeeds.
func (r *UsersRepo) CompleteOnboarding(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return user.ErrNotFound
	}

	var res *mongo.UpdateResult
	err := observe(r.prom, "users.complete_onboarding", func() error {
		var err error
		res, err = r.coll.UpdateOne(ctx,
			bson.M{"_id": oid},
			bson.M{"$set": bson.M{"onboarding_complete": true}},
		)
		return err
	})
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}
