package topic

import (
	"context"
	"errors"
	"sort"
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

const chatID int64 = -100555

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestDirectory(t *testing.T) (*Directory, *memoryTopics, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	coll := &memoryTopics{}
	dir := NewDirectory(coll, logrus.NewEntry(logger))
	dir.now = func() time.Time { return fixedNow }
	return dir, coll, hook
}

func TestSaveThenLookupIgnoresCaseAndSpacing(t *testing.T) {
	dir, coll, hook := newTestDirectory(t)

	saved, err := dir.Save(context.Background(), chatID, "  Release   Notes ", 12, domain.TopicManual)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	want := domain.Topic{ChatID: chatID, Key: "release notes", Title: "Release Notes", ThreadID: 12, Source: domain.TopicManual, UpdatedAt: fixedNow}
	if diff := cmp.Diff(want, saved); diff != "" {
		t.Fatalf("unexpected saved topic (-want +got):\n%s", diff)
	}
	if !coll.lastUpsert {
		t.Fatalf("expected an upsert")
	}

	found, err := dir.Lookup(context.Background(), chatID, "RELEASE notes")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if found.ThreadID != 12 || found.Title != "Release Notes" {
		t.Fatalf("unexpected lookup result: %+v", found)
	}

	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "topic_saved" {
		t.Fatalf("expected topic_saved log, got %+v", entry)
	}
}

func TestSaveReplacesThreadForSameTitle(t *testing.T) {
	dir, coll, _ := newTestDirectory(t)

	if _, err := dir.Save(context.Background(), chatID, "General", 2, domain.TopicDetected); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := dir.Save(context.Background(), chatID, "general", 5, domain.TopicManual); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if len(coll.docs) != 1 {
		t.Fatalf("expected a single mapping, got %d", len(coll.docs))
	}
	if coll.docs[0].ThreadID != 5 || coll.docs[0].Source != domain.TopicManual {
		t.Fatalf("expected the newer mapping to win, got %+v", coll.docs[0])
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	dir, _, _ := newTestDirectory(t)

	tests := []struct {
		name     string
		chatID   int64
		title    string
		threadID int
	}{
		{name: "no chat", title: "General", threadID: 2},
		{name: "blank title", chatID: chatID, title: "   ", threadID: 2},
		{name: "zero thread", chatID: chatID, title: "General"},
	}
	for _, tt := range tests {
		if _, err := dir.Save(context.Background(), tt.chatID, tt.title, tt.threadID, domain.TopicManual); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestLookupMissingAndFailing(t *testing.T) {
	dir, coll, _ := newTestDirectory(t)

	if _, err := dir.Lookup(context.Background(), chatID, "nothing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	errFind := errors.New("socket closed")
	coll.err = errFind
	if _, err := dir.Lookup(context.Background(), chatID, "nothing"); !errors.Is(err, errFind) {
		t.Fatalf("expected wrapped find error, got %v", err)
	}
}

func TestListSortedAndScopedToChat(t *testing.T) {
	dir, _, _ := newTestDirectory(t)

	for _, tt := range []struct {
		chat  int64
		title string
		id    int
	}{
		{chatID, "Support", 7},
		{chatID, "Announcements", 3},
		{-100777, "Elsewhere", 4},
	} {
		if _, err := dir.Save(context.Background(), tt.chat, tt.title, tt.id, domain.TopicDetected); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}

	topics, err := dir.List(context.Background(), chatID)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	var titles []string
	for _, tp := range topics {
		titles = append(titles, tp.Title)
	}
	if diff := cmp.Diff([]string{"Announcements", "Support"}, titles); diff != "" {
		t.Fatalf("unexpected topics (-want +got):\n%s", diff)
	}
}

type memoryTopics struct {
	docs       []domain.Topic
	lastUpsert bool
	err        error
}

func (m *memoryTopics) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, opt := range opts {
		if opt != nil && opt.Upsert != nil {
			m.lastUpsert = *opt.Upsert
		}
	}

	f := filter.(bson.M)
	set := update.(bson.M)["$set"].(bson.M)
	doc := domain.Topic{
		ChatID:    f["chat_id"].(int64),
		Key:       f["key"].(string),
		Title:     set["title"].(string),
		ThreadID:  set["thread_id"].(int),
		Source:    set["source"].(string),
		UpdatedAt: set["updated_at"].(time.Time),
	}
	for i := range m.docs {
		if m.docs[i].ChatID == doc.ChatID && m.docs[i].Key == doc.Key {
			m.docs[i] = doc
			return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
		}
	}
	m.docs = append(m.docs, doc)
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

func (m *memoryTopics) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	if m.err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, m.err, nil)
	}
	f := filter.(bson.M)
	for _, doc := range m.docs {
		if doc.ChatID == f["chat_id"] && doc.Key == f["key"] {
			return mongo.NewSingleResultFromDocument(doc, nil, nil)
		}
	}
	return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
}

func (m *memoryTopics) Find(_ context.Context, filter interface{}, _ ...*options.FindOptions) (*mongo.Cursor, error) {
	if m.err != nil {
		return nil, m.err
	}
	var matched []domain.Topic
	for _, doc := range m.docs {
		if doc.ChatID == filter.(bson.M)["chat_id"] {
			matched = append(matched, doc)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })

	docs := make([]interface{}, 0, len(matched))
	for _, doc := range matched {
		docs = append(docs, doc)
	}
	return mongo.NewCursorFromDocuments(docs, nil, nil)
}
