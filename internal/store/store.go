// Package store is the optional MongoDB side of the bot: user profiles, the
// operator inbox and learned forum topics. The bot runs without it when
// MONGO_URI is unset.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_group_admin_bot/internal/config"
)

// Managed groups are kept in the JSON registry file and have no collection.
const (
	CollectionUsers    = "users"
	CollectionInbox    = "inbox"
	CollectionCounters = "counters"
	CollectionTopics   = "topics"
)

var errNotReady = errors.New("mongo store is not connected")

type driver interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// Swapped out in tests.
var (
	connectMongo = func(ctx context.Context, opts *options.ClientOptions) (driver, error) {
		return mongo.Connect(ctx, opts)
	}
	createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
		return coll.Indexes().CreateMany(ctx, models)
	}
)

// Manager holds the connection and hands out collection handles.
type Manager struct {
	conn driver
	db   *mongo.Database
}

// NewManager connects to cfg.MongoURI and pings the primary. A failed ping
// releases the connection before returning.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	conn, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := conn.Ping(ctx, readpref.Primary()); err != nil {
		_ = conn.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{conn: conn, db: conn.Database(cfg.MongoDB)}, nil
}

func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Client is nil when the manager was built over a test double.
func (m *Manager) Client() *mongo.Client {
	c, _ := m.conn.(*mongo.Client)
	return c
}

func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Users has one profile per Telegram user seen by the bot.
func (m *Manager) Users() *mongo.Collection { return m.Collection(CollectionUsers) }

// Inbox has the private messages and group mentions waiting for an operator.
func (m *Manager) Inbox() *mongo.Collection { return m.Collection(CollectionInbox) }

// Counters has named sequences; the inbox numbers its messages from it.
func (m *Manager) Counters() *mongo.Collection { return m.Collection(CollectionCounters) }

// Topics has forum topic titles and thread ids per managed group.
func (m *Manager) Topics() *mongo.Collection { return m.Collection(CollectionTopics) }

// Ping is what /healthz reports as the mongo status.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.conn == nil {
		return errNotReady
	}

	if err := m.conn.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

type indexSet struct {
	coll   *mongo.Collection
	models []mongo.IndexModel
}

func named(name string, keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetName(name)}
}

func unique(name string, keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetName(name).SetUnique(true)}
}

func (m *Manager) indexSets() []indexSet {
	return []indexSet{
		{m.Users(), []mongo.IndexModel{
			unique("user_id_unique", bson.D{{Key: "user_id", Value: 1}}),
			named("last_seen_at_desc", bson.D{{Key: "last_seen_at", Value: -1}}),
			named("role", bson.D{{Key: "role", Value: 1}}),
		}},
		{m.Inbox(), []mongo.IndexModel{
			unique("seq_unique", bson.D{{Key: "seq", Value: 1}}),
			named("pending_by_seq", bson.D{{Key: "handled", Value: 1}, {Key: "seq", Value: -1}}),
		}},
		{m.Topics(), []mongo.IndexModel{
			unique("chat_topic_unique", bson.D{{Key: "chat_id", Value: 1}, {Key: "key", Value: 1}}),
		}},
	}
}

// EnsureBaseIndexes builds the users, inbox and topics indexes, stopping at
// the first collection that fails. Counters only needs the _id index.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errNotReady
	}

	for _, set := range m.indexSets() {
		if _, err := createIndexes(ctx, set.coll, set.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", set.coll.Name(), err)
		}
	}
	return nil
}

// Close is a no-op on a nil manager so shutdown can call it unconditionally.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.conn == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return m.conn.Disconnect(ctx)
}
