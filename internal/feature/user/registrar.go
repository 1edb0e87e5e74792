// Package user tracks the people who talk to the bot.
package user

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
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar upserts a user record on every interaction and keeps the profile
// fields and last-seen timestamp current.
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

// EnsureUser records the profile. It returns true when the user was seen for
// the first time. Role is only set on insert so operator promotion survives.
func (r *Registrar) EnsureUser(ctx context.Context, profile domain.User) (bool, error) {
	if r == nil || r.users == nil {
		return false, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if profile.UserID == 0 {
		return false, errors.New("user id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	set := bson.M{
		"updated_at":   now,
		"last_seen_at": now,
	}
	if profile.Username != "" {
		set["username"] = profile.Username
	}
	if profile.FirstName != "" {
		set["first_name"] = profile.FirstName
	}
	if profile.LastChatID != 0 {
		set["last_chat_id"] = profile.LastChatID
	}

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"user_id":    profile.UserID,
			"role":       domain.RoleUser,
			"created_at": now,
		},
	}

	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": profile.UserID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("ensure user: %w", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		r.logger.WithFields(logging.Fields{
			"event":   "user_registered",
			"user_id": profile.UserID,
			"chat_id": profile.LastChatID,
		}).Info("registered new user")
		return true, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "user_seen",
		"user_id": profile.UserID,
	}).Debug("updated user last seen")

	return false, nil
}
