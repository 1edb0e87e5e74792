package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_group_admin_bot/internal/domain"
)

func TestEnsureUserFirstContactUpsertsProfile(t *testing.T) {
	coll := &recordingUsers{known: map[int64]bool{}}
	logger, hook := logtest.NewNullLogger()
	registrar := NewRegistrar(coll, logrus.NewEntry(logger))

	created, err := registrar.EnsureUser(context.Background(), domain.User{
		UserID:     123,
		Username:   "alice",
		FirstName:  "Alice",
		LastChatID: -100555,
	})
	if err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected first contact to report a new user")
	}

	call := coll.only(t)
	if diff := cmp.Diff(bson.M{"user_id": int64(123)}, call.filter); diff != "" {
		t.Fatalf("unexpected filter (-want +got):\n%s", diff)
	}
	if !call.upsert {
		t.Fatalf("expected an upsert")
	}

	set := call.section(t, "$set")
	now := set["last_seen_at"]
	if _, ok := now.(time.Time); !ok {
		t.Fatalf("expected last_seen_at to be a timestamp, got %T", now)
	}
	wantSet := bson.M{
		"username":     "alice",
		"first_name":   "Alice",
		"last_chat_id": int64(-100555),
		"updated_at":   now,
		"last_seen_at": now,
	}
	if diff := cmp.Diff(wantSet, set); diff != "" {
		t.Fatalf("unexpected $set (-want +got):\n%s", diff)
	}

	wantInsert := bson.M{
		"user_id":    int64(123),
		"role":       domain.RoleUser,
		"created_at": now,
	}
	if diff := cmp.Diff(wantInsert, call.section(t, "$setOnInsert")); diff != "" {
		t.Fatalf("unexpected $setOnInsert (-want +got):\n%s", diff)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "user_registered" || entry.Level != logrus.InfoLevel {
		t.Fatalf("expected user_registered info log, got %+v", entry)
	}
}

func TestEnsureUserReturningContactKeepsRole(t *testing.T) {
	coll := &recordingUsers{known: map[int64]bool{777: true}}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	registrar := NewRegistrar(coll, logrus.NewEntry(logger))

	created, err := registrar.EnsureUser(context.Background(), domain.User{UserID: 777, FirstName: "Bob"})
	if err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if created {
		t.Fatalf("expected a returning user not to be reported as new")
	}

	set := coll.only(t).section(t, "$set")
	if _, ok := set["role"]; ok {
		t.Fatalf("role must only be written on insert, got %v", set["role"])
	}
	if _, ok := set["username"]; ok {
		t.Fatalf("empty username must not overwrite the stored one")
	}
	if set["first_name"] != "Bob" {
		t.Fatalf("expected first_name to be refreshed, got %v", set["first_name"])
	}

	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "user_seen" {
		t.Fatalf("expected user_seen debug log, got %+v", entry)
	}
}

func TestEnsureUserErrors(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	entry := logrus.NewEntry(logger)

	errWrite := errors.New("write concern")
	failing := NewRegistrar(&recordingUsers{err: errWrite}, entry)
	if _, err := failing.EnsureUser(context.Background(), domain.User{UserID: 1}); !errors.Is(err, errWrite) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}

	registrar := NewRegistrar(&recordingUsers{}, entry)
	if _, err := registrar.EnsureUser(context.Background(), domain.User{}); err == nil {
		t.Fatalf("expected error for zero user id")
	}
	if _, err := registrar.EnsureUser(nil, domain.User{UserID: 1}); err == nil {
		t.Fatalf("expected error for nil context")
	}

	var unset *Registrar
	if _, err := unset.EnsureUser(context.Background(), domain.User{UserID: 1}); err == nil {
		t.Fatalf("expected error for nil registrar")
	}
}

type updateCall struct {
	filter bson.M
	update bson.M
	upsert bool
}

func (c updateCall) section(t *testing.T, key string) bson.M {
	t.Helper()
	doc, ok := c.update[key].(bson.M)
	if !ok {
		t.Fatalf("expected %s section, got %T", key, c.update[key])
	}
	return doc
}

// recordingUsers records UpdateOne calls and reports an upsert for ids it has
// not seen before.
type recordingUsers struct {
	known map[int64]bool
	calls []updateCall
	err   error
}

func (r *recordingUsers) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if r.err != nil {
		return nil, r.err
	}

	call := updateCall{}
	call.filter, _ = filter.(bson.M)
	call.update, _ = update.(bson.M)
	for _, opt := range opts {
		if opt != nil && opt.Upsert != nil {
			call.upsert = *opt.Upsert
		}
	}
	r.calls = append(r.calls, call)

	id, _ := call.filter["user_id"].(int64)
	if r.known[id] {
		return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	if r.known == nil {
		r.known = map[int64]bool{}
	}
	r.known[id] = true
	return &mongo.UpdateResult{UpsertedCount: 1, UpsertedID: id}, nil
}

func (r *recordingUsers) only(t *testing.T) updateCall {
	t.Helper()
	if len(r.calls) != 1 {
		t.Fatalf("expected one UpdateOne call, got %d", len(r.calls))
	}
	return r.calls[0]
}
