package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_group_admin_bot/internal/config"
)

var testConfig = config.Config{MongoURI: "mongodb://stub-host:27017", MongoDB: "group_admin_test"}

func TestNewManagerOpensConfiguredDatabase(t *testing.T) {
	manager, fake := newTestManager(t)

	if got := manager.Database().Name(); got != testConfig.MongoDB {
		t.Fatalf("expected database %s, got %s", testConfig.MongoDB, got)
	}
	if diff := cmp.Diff([]string{testConfig.MongoDB}, fake.databaseRequests); diff != "" {
		t.Fatalf("unexpected database requests (-want +got):\n%s", diff)
	}
	names := []string{manager.Users().Name(), manager.Inbox().Name(), manager.Counters().Name(), manager.Topics().Name()}
	if diff := cmp.Diff([]string{CollectionUsers, CollectionInbox, CollectionCounters, CollectionTopics}, names); diff != "" {
		t.Fatalf("unexpected collection names (-want +got):\n%s", diff)
	}
	if manager.Client() != nil {
		t.Fatalf("expected no *mongo.Client behind a fake")
	}

	if err := manager.Close(context.Background()); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !fake.disconnected {
		t.Fatalf("expected Close to disconnect the client")
	}
}

func TestNewManagerFailures(t *testing.T) {
	t.Run("connect error", func(t *testing.T) {
		errConnect := errors.New("dial tcp: refused")
		withConnect(t, nil, errConnect)

		_, err := NewManager(context.Background(), testConfig)
		if !errors.Is(err, errConnect) {
			t.Fatalf("expected wrapped connect error, got %v", err)
		}
	})

	t.Run("ping error disconnects", func(t *testing.T) {
		fake := newFakeMongoClient(t)
		fake.pingErr = errors.New("no primary")
		withConnect(t, fake, nil)

		if _, err := NewManager(context.Background(), testConfig); err == nil {
			t.Fatalf("expected ping error")
		}
		if !fake.disconnected {
			t.Fatalf("expected a failed ping to release the client")
		}
	})
}

func TestManagerRejectsNilContext(t *testing.T) {
	manager, _ := newTestManager(t)

	checks := map[string]func() error{
		"NewManager": func() error {
			_, err := NewManager(nil, testConfig)
			return err
		},
		"Ping":              func() error { return manager.Ping(nil) },
		"EnsureBaseIndexes": func() error { return manager.EnsureBaseIndexes(nil) },
		"Close":             func() error { return manager.Close(nil) },
	}

	for name, check := range checks {
		if err := check(); err == nil {
			t.Fatalf("%s: expected error for nil context", name)
		}
	}
}

func TestManagerPing(t *testing.T) {
	manager, fake := newTestManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := manager.Ping(ctx); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	// one ping while connecting, one for the explicit call
	if fake.pings != 2 || fake.readPref != "primary" {
		t.Fatalf("expected two primary pings, got %d (%q)", fake.pings, fake.readPref)
	}

	errPing := errors.New("server selection timeout")
	fake.pingErr = errPing
	if err := manager.Ping(ctx); !errors.Is(err, errPing) {
		t.Fatalf("expected wrapped ping error, got %v", err)
	}

	var empty *Manager
	if err := empty.Ping(ctx); err == nil {
		t.Fatalf("expected error from an uninitialized manager")
	}
}

func TestEnsureBaseIndexesCoversEveryCollection(t *testing.T) {
	manager, _ := newTestManager(t)
	recorder := withIndexRecorder(t, nil)

	if err := manager.EnsureBaseIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureBaseIndexes returned error: %v", err)
	}

	type indexShape struct {
		Keys   bson.D
		Name   string
		Unique bool
	}
	got := map[string][]indexShape{}
	var order []string
	for _, call := range recorder.calls {
		order = append(order, call.collection)
		for _, model := range call.models {
			keys, ok := model.Keys.(bson.D)
			if !ok {
				t.Fatalf("expected bson.D keys, got %T", model.Keys)
			}
			shape := indexShape{Keys: keys}
			if model.Options != nil && model.Options.Name != nil {
				shape.Name = *model.Options.Name
			}
			if model.Options != nil && model.Options.Unique != nil {
				shape.Unique = *model.Options.Unique
			}
			got[call.collection] = append(got[call.collection], shape)
		}
	}

	if diff := cmp.Diff([]string{CollectionUsers, CollectionInbox, CollectionTopics}, order); diff != "" {
		t.Fatalf("unexpected collections (-want +got):\n%s", diff)
	}

	want := map[string][]indexShape{
		CollectionUsers: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Name: "user_id_unique", Unique: true},
			{Keys: bson.D{{Key: "last_seen_at", Value: -1}}, Name: "last_seen_at_desc"},
			{Keys: bson.D{{Key: "role", Value: 1}}, Name: "role"},
		},
		CollectionInbox: {
			{Keys: bson.D{{Key: "seq", Value: 1}}, Name: "seq_unique", Unique: true},
			{Keys: bson.D{{Key: "handled", Value: 1}, {Key: "seq", Value: -1}}, Name: "pending_by_seq"},
		},
		CollectionTopics: {
			{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "key", Value: 1}}, Name: "chat_topic_unique", Unique: true},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected indexes (-want +got):\n%s", diff)
	}
}

func TestEnsureBaseIndexesWrapsFailure(t *testing.T) {
	manager, _ := newTestManager(t)
	errIndex := errors.New("index build failed")

	recorder := withIndexRecorder(t, errIndex)

	err := manager.EnsureBaseIndexes(context.Background())
	if !errors.Is(err, errIndex) {
		t.Fatalf("expected wrapped index error, got %v", err)
	}
	if len(recorder.calls) != 1 {
		t.Fatalf("expected to stop after the first failing collection, got %d calls", len(recorder.calls))
	}
}

type fakeMongoClient struct {
	client *mongo.Client

	pingErr  error
	pings    int
	readPref string

	databaseRequests []string
	disconnected     bool
}

func newFakeMongoClient(t *testing.T) *fakeMongoClient {
	t.Helper()

	// An unconnected client is enough to hand out database and collection handles.
	client, err := mongo.NewClient(options.Client().ApplyURI("mongodb://example.com:27017"))
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	return &fakeMongoClient{client: client}
}

func (f *fakeMongoClient) Ping(_ context.Context, rp *readpref.ReadPref) error {
	f.pings++
	if rp != nil {
		f.readPref = rp.String()
	}
	return f.pingErr
}

func (f *fakeMongoClient) Database(name string, opts ...*options.DatabaseOptions) *mongo.Database {
	f.databaseRequests = append(f.databaseRequests, name)
	return f.client.Database(name, opts...)
}

func (f *fakeMongoClient) Disconnect(context.Context) error {
	f.disconnected = true
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeMongoClient) {
	t.Helper()

	fake := newFakeMongoClient(t)
	withConnect(t, fake, nil)

	manager, err := NewManager(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return manager, fake
}

func withConnect(t *testing.T, client driver, err error) {
	t.Helper()

	prev := connectMongo
	connectMongo = func(context.Context, *options.ClientOptions) (driver, error) {
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	t.Cleanup(func() { connectMongo = prev })
}

type indexCall struct {
	collection string
	models     []mongo.IndexModel
}

type indexRecorder struct {
	calls []indexCall
}

func withIndexRecorder(t *testing.T, failWith error) *indexRecorder {
	t.Helper()

	recorder := &indexRecorder{}
	prev := createIndexes
	createIndexes = func(_ context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
		recorder.calls = append(recorder.calls, indexCall{collection: coll.Name(), models: models})
		if failWith != nil {
			return nil, failWith
		}
		return []string{coll.Name() + "_idx"}, nil
	}
	t.Cleanup(func() { createIndexes = prev })

	return recorder
}
