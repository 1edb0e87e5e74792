// Package inbox keeps the messages users send to the bot, privately or by
// mentioning it in a group, until an operator answers or resolves them.
package inbox

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

// PendingLimit caps Pending when no limit is given.
const PendingLimit = 50

const seqCounterID = "inbox_seq"

// ErrNotFound is returned when no inbox message has the requested number.
var ErrNotFound = errors.New("inbox message not found")

type messageCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type counterCollection interface {
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

// Store numbers inbox messages from a counter document so the "m<seq>"
// references stay short and never repeat.
type Store struct {
	messages messageCollection
	counters counterCollection
	logger   *logrus.Entry
	now      func() time.Time
}

func NewStore(messages messageCollection, counters counterCollection, logger *logrus.Entry) *Store {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Store{
		messages: messages,
		counters: counters,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *Store) check(ctx context.Context) error {
	if s == nil || s.messages == nil || s.counters == nil {
		return errors.New("inbox store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// Record assigns the next sequence number and stores msg as pending.
func (s *Store) Record(ctx context.Context, msg domain.InboxMessage) (domain.InboxMessage, error) {
	if err := s.check(ctx); err != nil {
		return domain.InboxMessage{}, err
	}

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return domain.InboxMessage{}, err
	}

	msg.Seq = seq
	msg.CreatedAt = s.now()
	msg.Handled = false
	msg.HandledBy = 0
	msg.HandledAt = nil

	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return domain.InboxMessage{}, fmt.Errorf("insert inbox message: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":   "inbox_recorded",
		"seq":     seq,
		"source":  msg.Source,
		"chat_id": msg.ChatID,
		"user_id": msg.FromID,
	}).Info("recorded inbox message")

	return msg, nil
}

func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	result := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": seqCounterID},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	if result == nil {
		return 0, errors.New("next inbox number: no result")
	}

	var counter struct {
		Value int64 `bson:"value"`
	}
	if err := result.Decode(&counter); err != nil {
		return 0, fmt.Errorf("next inbox number: %w", err)
	}
	if counter.Value <= 0 {
		return 0, fmt.Errorf("next inbox number: invalid value %d", counter.Value)
	}
	return counter.Value, nil
}

// Get returns the message numbered seq, handled or not.
func (s *Store) Get(ctx context.Context, seq int64) (domain.InboxMessage, error) {
	if err := s.check(ctx); err != nil {
		return domain.InboxMessage{}, err
	}

	result := s.messages.FindOne(ctx, bson.M{"seq": seq})
	if result == nil {
		return domain.InboxMessage{}, errors.New("find inbox message: no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.InboxMessage{}, ErrNotFound
		}
		return domain.InboxMessage{}, fmt.Errorf("find inbox message: %w", err)
	}

	var msg domain.InboxMessage
	if err := result.Decode(&msg); err != nil {
		return domain.InboxMessage{}, fmt.Errorf("decode inbox message: %w", err)
	}
	return msg, nil
}

// Pending lists unhandled messages, newest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]domain.InboxMessage, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = PendingLimit
	}

	cursor, err := s.messages.Find(ctx, bson.M{"handled": false},
		options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find pending messages: %w", err)
	}
	defer cursor.Close(ctx)

	pending := make([]domain.InboxMessage, 0, limit)
	if err := cursor.All(ctx, &pending); err != nil {
		return nil, fmt.Errorf("decode pending messages: %w", err)
	}
	return pending, nil
}

func (s *Store) handledUpdate(adminID int64) bson.M {
	return bson.M{"$set": bson.M{
		"handled":    true,
		"handled_by": adminID,
		"handled_at": s.now(),
	}}
}

// Resolve marks one message as handled by adminID. Resolving an already
// handled message refreshes who handled it.
func (s *Store) Resolve(ctx context.Context, seq, adminID int64) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	result, err := s.messages.UpdateOne(ctx, bson.M{"seq": seq}, s.handledUpdate(adminID))
	if err != nil {
		return fmt.Errorf("resolve inbox message: %w", err)
	}
	if result == nil || result.MatchedCount == 0 {
		return ErrNotFound
	}

	s.logger.WithFields(logging.Fields{
		"event":    "inbox_resolved",
		"seq":      seq,
		"admin_id": adminID,
	}).Info("resolved inbox message")
	return nil
}

// Clear marks the count oldest pending messages as handled, or all of them
// when count is not positive. It returns how many were cleared.
func (s *Store) Clear(ctx context.Context, count int, adminID int64) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	filter := bson.M{"handled": false}
	if count > 0 {
		seqs, err := s.oldestPending(ctx, count)
		if err != nil {
			return 0, err
		}
		if len(seqs) == 0 {
			return 0, nil
		}
		filter = bson.M{"seq": bson.M{"$in": seqs}, "handled": false}
	}

	result, err := s.messages.UpdateMany(ctx, filter, s.handledUpdate(adminID))
	if err != nil {
		return 0, fmt.Errorf("clear inbox: %w", err)
	}

	var cleared int64
	if result != nil {
		cleared = result.ModifiedCount
	}

	s.logger.WithFields(logging.Fields{
		"event":    "inbox_cleared",
		"cleared":  cleared,
		"admin_id": adminID,
	}).Info("cleared inbox")
	return cleared, nil
}

func (s *Store) oldestPending(ctx context.Context, count int) ([]int64, error) {
	cursor, err := s.messages.Find(ctx, bson.M{"handled": false},
		options.Find().
			SetSort(bson.D{{Key: "seq", Value: 1}}).
			SetLimit(int64(count)).
			SetProjection(bson.M{"seq": 1}))
	if err != nil {
		return nil, fmt.Errorf("find oldest pending: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Seq int64 `bson:"seq"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode oldest pending: %w", err)
	}

	seqs := make([]int64, 0, len(rows))
	for _, row := range rows {
		seqs = append(seqs, row.Seq)
	}
	return seqs, nil
}
