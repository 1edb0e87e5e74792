package domain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultRecentLimit caps ListRecent when no limit is given.
const DefaultRecentLimit = 50

type findCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// ErrUserNotFound is returned by GetByID when no user matches.
var ErrUserNotFound = errors.New("user not found")

// UserRepository retrieves tracked users from MongoDB.
type UserRepository struct {
	collection findCollection
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(collection findCollection) *UserRepository {
	return &UserRepository{collection: collection}
}

// GetByID fetches a user by Telegram user_id.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}
	if userID == 0 {
		return User{}, errors.New("user_id is required")
	}

	return r.findOne(ctx, bson.M{"user_id": userID})
}

// FindByName resolves "@username" or a bare name: username first, then first
// name, both compared case-insensitively. The most recently seen match wins.
func (r *UserRepository) FindByName(ctx context.Context, name string) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}

	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if name == "" {
		return User{}, errors.New("name is required")
	}

	exact := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(name) + "$", Options: "i"}
	for _, field := range []string{"username", "first_name"} {
		user, err := r.findOne(ctx, bson.M{field: exact}, options.FindOne().SetSort(bson.D{{Key: "last_seen_at", Value: -1}}))
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		return user, err
	}

	return User{}, ErrUserNotFound
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (User, error) {
	result := r.collection.FindOne(ctx, filter, opts...)
	if result == nil {
		return User{}, errors.New("find user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	var user User
	if err := result.Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}

	return user, nil
}

// ListRecent returns up to limit users ordered by last_seen_at, newest first.
func (r *UserRepository) ListRecent(ctx context.Context, limit int) ([]User, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_seen_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find recent users: %w", err)
	}
	defer cursor.Close(ctx)

	users := make([]User, 0, limit)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode recent users: %w", err)
	}

	return users, nil
}
