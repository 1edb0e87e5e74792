// Package operator keeps the role=admin records in the users collection in
// line with the configured ADMIN_IDS at startup.
package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/logging"
)

type userCollection interface {
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar bootstraps operator records.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
	}
}

// EnsureOperators upserts every configured admin id with role=admin and demotes
// stale admins that are no longer configured back to role=user.
func (r *Registrar) EnsureOperators(ctx context.Context, adminIDs []int64) error {
	if r == nil || r.users == nil {
		return errors.New("operator registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if len(adminIDs) == 0 {
		return errors.New("at least one admin id is required")
	}
	for _, id := range adminIDs {
		if id == 0 {
			return errors.New("admin id must be non-zero")
		}
	}

	now := time.Now().UTC()

	demoteResult, err := r.users.UpdateMany(ctx,
		bson.M{"role": domain.RoleAdmin, "user_id": bson.M{"$nin": adminIDs}},
		bson.M{"$set": bson.M{
			"role":       domain.RoleUser,
			"updated_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("demote stale operators: %w", err)
	}

	var matched, upserted int64
	for _, id := range adminIDs {
		result, err := r.users.UpdateOne(ctx,
			bson.M{"user_id": id},
			bson.M{
				"$set": bson.M{
					"user_id":    id,
					"role":       domain.RoleAdmin,
					"updated_at": now,
				},
				"$setOnInsert": bson.M{
					"created_at": now,
				},
			},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("ensure operator %d: %w", id, err)
		}
		matched += matchedCount(result)
		upserted += upsertedCount(result)
	}

	r.logger.WithFields(logging.Fields{
		"event":             "operator_bootstrap",
		"operators":         len(adminIDs),
		"demoted_operators": modifiedCount(demoteResult),
		"matched_operators": matched,
		"upserted":          upserted,
	}).Info("ensured bot operators")

	return nil
}

func modifiedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.ModifiedCount
}

func matchedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.MatchedCount
}

func upsertedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.UpsertedCount
}
