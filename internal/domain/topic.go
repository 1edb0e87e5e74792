package domain

import (
	"strings"
	"time"
)

// Topic sources.
const (
	TopicManual   = "manual"
	TopicDetected = "detected"
)

// Topic maps a forum topic title to its message thread id in one chat. Key is
// the normalized title used for lookups.
type Topic struct {
	ChatID    int64     `bson:"chat_id"`
	Key       string    `bson:"key"`
	Title     string    `bson:"title"`
	ThreadID  int       `bson:"thread_id"`
	Source    string    `bson:"source"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// TopicKey normalizes a topic title for lookups.
func TopicKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
