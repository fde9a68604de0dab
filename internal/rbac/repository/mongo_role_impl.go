package repository

import (
	"context"
	"time"

	"scopedrbac/internal/rbac/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *MongoRepository) InsertRole(ctx context.Context, role *model.Role) error {
	_, err := r.Roles.InsertOne(ctx, role)
	return mapErr("insert role", err)
}

func (r *MongoRepository) ReplaceRole(ctx context.Context, role *model.Role) error {
	res, err := r.Roles.ReplaceOne(ctx, bson.M{"_id": role.Name}, role)
	if err != nil {
		return mapErr("replace role", err)
	}
	if res.MatchedCount == 0 {
		return model.NotFoundErrorf("role %q", role.Name)
	}
	return nil
}

func (r *MongoRepository) GetRole(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := r.Roles.FindOne(ctx, bson.M{"_id": name}).Decode(&role); err != nil {
		return nil, mapErr("role "+name, err)
	}
	return &role, nil
}

func (r *MongoRepository) ListRoles(ctx context.Context) ([]*model.Role, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "level", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.Roles.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, mapErr("list roles", err)
	}
	defer cursor.Close(ctx)

	var results []*model.Role
	if err := cursor.All(ctx, &results); err != nil {
		return nil, mapErr("decode roles", err)
	}
	return results, nil
}

func (r *MongoRepository) DeleteRole(ctx context.Context, name string) error {
	res, err := r.Roles.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return mapErr("delete role", err)
	}
	if res.DeletedCount == 0 {
		return model.NotFoundErrorf("role %q", name)
	}
	return nil
}

func (r *MongoRepository) IncRoleStats(ctx context.Context, name string, totalDelta, activeDelta int64) error {
	update := bson.M{
		"$inc": bson.M{
			"stats.total_users":  totalDelta,
			"stats.active_users": activeDelta,
		},
		"$set": bson.M{"updated_at": time.Now()},
	}
	res, err := r.Roles.UpdateOne(ctx, bson.M{"_id": name}, update)
	if err != nil {
		return mapErr("update role stats", err)
	}
	if res.MatchedCount == 0 {
		return model.NotFoundErrorf("role %q", name)
	}
	return nil
}

func (r *MongoRepository) SetRoleStats(ctx context.Context, name string, stats model.RoleStats) error {
	update := bson.M{"$set": bson.M{"stats": stats, "updated_at": time.Now()}}
	res, err := r.Roles.UpdateOne(ctx, bson.M{"_id": name}, update)
	if err != nil {
		return mapErr("set role stats", err)
	}
	if res.MatchedCount == 0 {
		return model.NotFoundErrorf("role %q", name)
	}
	return nil
}
