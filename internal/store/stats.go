package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_group_admin_bot/internal/domain"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes the counters shown on the admin panel without leaking
// MongoDB internals to callers.
type StatsProvider struct {
	users countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the users collection.
func NewStatsProvider(users countCollection) *StatsProvider {
	return &StatsProvider{users: users}
}

// CountUsers returns the number of tracked users.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	return p.count(ctx, bson.D{}, "count users")
}

// CountOperators returns the number of users holding the admin role.
func (p *StatsProvider) CountOperators(ctx context.Context) (int64, error) {
	return p.count(ctx, bson.M{"role": domain.RoleAdmin}, "count operators")
}

func (p *StatsProvider) count(ctx context.Context, filter interface{}, op string) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}
