package repository

import (
	"context"
	"time"

	"scopedrbac/internal/rbac/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *MongoRepository) InsertAssignment(ctx context.Context, a *model.Assignment) error {
	_, err := r.Assignments.InsertOne(ctx, a)
	return mapErr("insert assignment", err)
}

func (r *MongoRepository) ReplaceAssignment(ctx context.Context, a *model.Assignment) error {
	res, err := r.Assignments.ReplaceOne(ctx, bson.M{"_id": a.ID}, a)
	if err != nil {
		return mapErr("replace assignment", err)
	}
	if res.MatchedCount == 0 {
		return model.NotFoundErrorf("assignment %q", a.ID)
	}
	return nil
}

func (r *MongoRepository) GetAssignment(ctx context.Context, id string) (*model.Assignment, error) {
	var a model.Assignment
	if err := r.Assignments.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		return nil, mapErr("assignment "+id, err)
	}
	return &a, nil
}

func assignmentQuery(filter AssignmentFilter) bson.M {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Role != "" {
		query["role"] = filter.Role
	}
	if filter.ActiveOnly {
		query["active"] = true
	}
	if len(filter.Statuses) > 0 {
		query["approval_status"] = bson.M{"$in": filter.Statuses}
	}
	if filter.LapsedAt != nil {
		query["active"] = true
		query["$or"] = bson.A{
			bson.M{"valid_until": bson.M{"$lte": *filter.LapsedAt}},
			bson.M{"delegation.expires_at": bson.M{"$lte": *filter.LapsedAt}},
		}
	}
	return query
}

func (r *MongoRepository) FindAssignments(ctx context.Context, filter AssignmentFilter) ([]*model.Assignment, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.Assignments.Find(ctx, assignmentQuery(filter), findOptions)
	if err != nil {
		return nil, mapErr("find assignments", err)
	}
	defer cursor.Close(ctx)

	var results []*model.Assignment
	if err := cursor.All(ctx, &results); err != nil {
		return nil, mapErr("decode assignments", err)
	}
	return results, nil
}

func (r *MongoRepository) CountAssignments(ctx context.Context, filter AssignmentFilter) (int64, error) {
	n, err := r.Assignments.CountDocuments(ctx, assignmentQuery(filter))
	return n, mapErr("count assignments", err)
}

func (r *MongoRepository) ClearPrimary(ctx context.Context, userID, exceptID string, at time.Time) (int64, error) {
	filter := bson.M{
		"user_id":    userID,
		"active":     true,
		"is_primary": true,
		"_id":        bson.M{"$ne": exceptID},
	}
	update := bson.M{
		"$set": bson.M{"is_primary": false, "updated_at": at},
		"$push": bson.M{"history": model.HistoryEntry{
			Action:    model.HistoryModified,
			Actor:     model.SystemActor,
			Timestamp: at,
			Details:   map[string]string{"is_primary": "false", "replaced_by": exceptID},
		}},
	}
	res, err := r.Assignments.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, mapErr("clear primary", err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) ExpireAssignment(ctx context.Context, id string, entry model.HistoryEntry) (bool, error) {
	// Matching on active makes a repeated expiry a no-op.
	filter := bson.M{"_id": id, "active": true}
	update := bson.M{
		"$set": bson.M{
			"active":     false,
			"is_primary": false,
			"expired_at": entry.Timestamp,
			"updated_at": entry.Timestamp,
		},
		"$push": bson.M{"history": entry},
	}
	res, err := r.Assignments.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, mapErr("expire assignment", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoRepository) RecordUsage(ctx context.Context, id string, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{"usage.count": 1},
		"$set": bson.M{"usage.last_used_at": at},
	}
	res, err := r.Assignments.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return mapErr("record usage", err)
	}
	if res.MatchedCount == 0 {
		return model.NotFoundErrorf("assignment %q", id)
	}
	return nil
}
