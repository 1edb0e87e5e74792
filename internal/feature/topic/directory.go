// Package topic remembers forum topic titles per managed group. The Bot API
// cannot list a forum's topics, so titles are learned from topic-created
// service messages and from /addtopic.
package topic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/logging"
)

// ErrNotFound is returned by Lookup for an unknown title.
var ErrNotFound = errors.New("topic not found")

type topicCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type Directory struct {
	topics topicCollection
	logger *logrus.Entry
	now    func() time.Time
}

func NewDirectory(topics topicCollection, logger *logrus.Entry) *Directory {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Directory{
		topics: topics,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (d *Directory) check(ctx context.Context) error {
	if d == nil || d.topics == nil {
		return errors.New("topic directory is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// Save maps title to threadID in chatID, replacing any earlier mapping of the
// same title.
func (d *Directory) Save(ctx context.Context, chatID int64, title string, threadID int, source string) (domain.Topic, error) {
	if err := d.check(ctx); err != nil {
		return domain.Topic{}, err
	}

	title = strings.Join(strings.Fields(title), " ")
	key := domain.TopicKey(title)
	if chatID == 0 || key == "" {
		return domain.Topic{}, errors.New("chat id and title are required")
	}
	if threadID <= 0 {
		return domain.Topic{}, fmt.Errorf("invalid thread id %d", threadID)
	}

	saved := domain.Topic{
		ChatID:    chatID,
		Key:       key,
		Title:     title,
		ThreadID:  threadID,
		Source:    source,
		UpdatedAt: d.now(),
	}

	_, err := d.topics.UpdateOne(ctx,
		bson.M{"chat_id": chatID, "key": key},
		bson.M{"$set": bson.M{
			"title":      saved.Title,
			"thread_id":  saved.ThreadID,
			"source":     saved.Source,
			"updated_at": saved.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("save topic: %w", err)
	}

	d.logger.WithFields(logging.Fields{
		"event":     "topic_saved",
		"chat_id":   chatID,
		"thread_id": threadID,
		"source":    source,
	}).Info("saved topic mapping")

	return saved, nil
}

// Lookup resolves a title case-insensitively.
func (d *Directory) Lookup(ctx context.Context, chatID int64, title string) (domain.Topic, error) {
	if err := d.check(ctx); err != nil {
		return domain.Topic{}, err
	}

	result := d.topics.FindOne(ctx, bson.M{"chat_id": chatID, "key": domain.TopicKey(title)})
	if result == nil {
		return domain.Topic{}, errors.New("find topic: no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Topic{}, ErrNotFound
		}
		return domain.Topic{}, fmt.Errorf("find topic: %w", err)
	}

	var found domain.Topic
	if err := result.Decode(&found); err != nil {
		return domain.Topic{}, fmt.Errorf("decode topic: %w", err)
	}
	return found, nil
}

// List returns the known topics of chatID ordered by title.
func (d *Directory) List(ctx context.Context, chatID int64) ([]domain.Topic, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	cursor, err := d.topics.Find(ctx, bson.M{"chat_id": chatID},
		options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find topics: %w", err)
	}
	defer cursor.Close(ctx)

	var topics []domain.Topic
	if err := cursor.All(ctx, &topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	return topics, nil
}
