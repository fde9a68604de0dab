package repository

import (
	"context"
	"errors"

	"scopedrbac/internal/rbac/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoRepository struct {
	Permissions *mongo.Collection
	Roles       *mongo.Collection
	Assignments *mongo.Collection
	Client      *mongo.Client
}

// CollectionNames names the collections backing the repository.
type CollectionNames struct {
	Permissions string
	Roles       string
	Assignments string
}

func NewMongoRepository(db *mongo.Database, names CollectionNames) *MongoRepository {
	return &MongoRepository{
		Permissions: db.Collection(names.Permissions),
		Roles:       db.Collection(names.Roles),
		Assignments: db.Collection(names.Assignments),
		Client:      db.Client(),
	}
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	// Permission and role names are the document _id, so uniqueness comes for free.
	_, err := r.Permissions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "module", Value: 1}, {Key: "security_level", Value: 1}},
		Options: options.Index().SetName("idx_module_level"),
	})
	if err != nil {
		return mapErr("ensure permission indexes", err)
	}

	// 1. One active assignment per (user, role)
	idxActivePair := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "role", Value: 1},
		},
		Options: options.Index().
			SetUnique(true).
			SetName("uniq_active_user_role").
			SetPartialFilterExpression(bson.M{"active": true}),
	}

	// 2. At most one active primary assignment per user
	idxPrimary := mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetName("uniq_active_primary").
			SetPartialFilterExpression(bson.M{"active": true, "is_primary": true}),
	}

	// 3. Sweep scan
	idxValidUntil := mongo.IndexModel{
		Keys:    bson.D{{Key: "active", Value: 1}, {Key: "valid_until", Value: 1}},
		Options: options.Index().SetName("idx_active_valid_until"),
	}

	idxRole := mongo.IndexModel{
		Keys:    bson.D{{Key: "role", Value: 1}, {Key: "active", Value: 1}},
		Options: options.Index().SetName("idx_role_active"),
	}

	_, err = r.Assignments.Indexes().CreateMany(ctx, []mongo.IndexModel{idxActivePair, idxPrimary, idxValidUntil, idxRole})
	return mapErr("ensure assignment indexes", err)
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return mapErr("ping", r.Client.Ping(ctx, readpref.Primary()))
}

// WithTx runs fn inside a multi-document transaction. When ctx already carries
// a session the call joins it.
func (r *MongoRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := r.Client.StartSession()
	if err != nil {
		return mapErr("start session", err)
	}
	defer session.EndSession(ctx)

	callback := func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	}

	_, err = session.WithTransaction(ctx, callback)
	if err == nil {
		return nil
	}
	// Errors raised by fn already carry a kind.
	if isKinded(err) {
		return err
	}
	return mapErr("transaction", err)
}

func isKinded(err error) bool {
	for _, kind := range []error{model.ErrValidation, model.ErrConflict, model.ErrAuthorization, model.ErrNotFound, model.ErrDependency, ErrDuplicate} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// mapErr translates driver errors into repository and model error kinds.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isKinded(err):
		return err
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	case errors.Is(err, mongo.ErrNoDocuments):
		return model.NotFoundErrorf("%s", op)
	default:
		// Timeouts, network faults, aborted transactions and anything else
		// the driver raises are datastore failures.
		return model.DependencyError(op, err)
	}
}
