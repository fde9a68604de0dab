package repository

import (
	"context"

	"scopedrbac/internal/rbac/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *MongoRepository) InsertPermission(ctx context.Context, p *model.Permission) error {
	_, err := r.Permissions.InsertOne(ctx, p)
	return mapErr("insert permission", err)
}

func (r *MongoRepository) ReplacePermission(ctx context.Context, p *model.Permission) error {
	res, err := r.Permissions.ReplaceOne(ctx, bson.M{"_id": p.Name}, p)
	if err != nil {
		return mapErr("replace permission", err)
	}
	if res.MatchedCount == 0 {
		return model.NotFoundErrorf("permission %q", p.Name)
	}
	return nil
}

func (r *MongoRepository) GetPermission(ctx context.Context, name string) (*model.Permission, error) {
	var p model.Permission
	err := r.Permissions.FindOne(ctx, bson.M{"_id": name}).Decode(&p)
	if err != nil {
		return nil, mapErr("permission "+name, err)
	}
	return &p, nil
}

func (r *MongoRepository) ListPermissions(ctx context.Context, filter PermissionFilter) ([]*model.Permission, error) {
	query := bson.M{}
	if filter.Module != "" {
		query["module"] = filter.Module
	}
	if filter.SecurityLevel != nil {
		query["security_level"] = *filter.SecurityLevel
	}
	if !filter.IncludeInactive {
		query["active"] = true
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.Permissions.Find(ctx, query, findOptions)
	if err != nil {
		return nil, mapErr("list permissions", err)
	}
	defer cursor.Close(ctx)

	var results []*model.Permission
	if err := cursor.All(ctx, &results); err != nil {
		return nil, mapErr("decode permissions", err)
	}
	return results, nil
}
