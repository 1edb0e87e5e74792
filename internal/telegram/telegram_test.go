package telegram

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_group_admin_bot/internal/config"
)

type fakeBot struct {
	*fakePlatform
	startedWith context.Context
}

func (f *fakeBot) Start(ctx context.Context) {
	f.startedWith = ctx
}

type recordingHandler struct {
	updates []*models.Update
}

func (h *recordingHandler) HandleUpdate(_ context.Context, update *models.Update) {
	h.updates = append(h.updates, update)
}

func TestNewClientCreatesBot(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	var gotToken string
	var gotOptions []bot.Option
	b := &fakeBot{fakePlatform: newFakePlatform()}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		gotToken = token
		gotOptions = options
		return b, nil
	}

	cfg := config.Config{TelegramToken: "token-123"}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(cfg, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if client == nil || client.bot == nil || client.Platform() == nil {
		t.Fatalf("expected client, bot and platform to be initialized")
	}

	if gotToken != cfg.TelegramToken {
		t.Fatalf("expected token %q, got %q", cfg.TelegramToken, gotToken)
	}

	if len(gotOptions) != 3 {
		t.Fatalf("expected 3 bot options (allowed updates, default handler, error handler), got %d", len(gotOptions))
	}
}

func TestNewClientPropagatesBotError(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	expected := errors.New("boom")
	createBot = func(string, ...bot.Option) (botAPI, error) {
		return nil, expected
	}

	_, err := NewClient(config.Config{TelegramToken: "token"}, nil)
	if !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestClientStartLogsAndUsesContext(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	client := &Client{
		bot:     &fakeBot{fakePlatform: newFakePlatform()},
		updates: make(chan *models.Update, 1),
		logger:  logrus.NewEntry(hookLogger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client.Start(ctx, &recordingHandler{})

	if fb, ok := client.bot.(*fakeBot); ok {
		if fb.startedWith != ctx {
			t.Fatalf("expected bot to start with provided context")
		}
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries (start/stop), got %d", len(entries))
	}

	if entries[0].Data["event"] != "telegram_listen" {
		t.Fatalf("expected start log event, got %v", entries[0].Data["event"])
	}
	if entries[1].Data["event"] != "telegram_stopped" {
		t.Fatalf("expected stop log event, got %v", entries[1].Data["event"])
	}
}

func TestExtractUpdateMeta(t *testing.T) {
	tests := []struct {
		name   string
		update *models.Update
		want   updateMeta
	}{
		{
			name: "command message",
			update: &models.Update{Message: &models.Message{
				From: &models.User{ID: 10},
				Chat: models.Chat{ID: -20},
				Text: "/Mute@test_bot please",
			}},
			want: updateMeta{userID: 10, chatID: -20, command: "mute", updateType: "message"},
		},
		{
			name: "captioned photo",
			update: &models.Update{Message: &models.Message{
				From:    &models.User{ID: 11},
				Chat:    models.Chat{ID: 11},
				Caption: "/send_photo -100",
				Photo:   []models.PhotoSize{{FileID: "p"}},
			}},
			want: updateMeta{userID: 11, chatID: 11, command: "send_photo", media: MediaPhoto, updateType: "message"},
		},
		{
			name: "plain text from a channel post author",
			update: &models.Update{Message: &models.Message{
				Chat: models.Chat{ID: -30},
				Text: "just chatting",
			}},
			want: updateMeta{chatID: -30, updateType: "message"},
		},
		{
			name: "bot added to a group",
			update: &models.Update{MyChatMember: &models.ChatMemberUpdated{
				From:          models.User{ID: 13},
				Chat:          models.Chat{ID: -23},
				OldChatMember: models.ChatMember{Type: models.ChatMemberTypeLeft},
				NewChatMember: models.ChatMember{Type: models.ChatMemberTypeAdministrator},
			}},
			want: updateMeta{userID: 13, chatID: -23, updateType: "my_chat_member", transition: "left->administrator"},
		},
		{
			name:   "anything else",
			update: &models.Update{},
			want:   updateMeta{updateType: "other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractUpdateMeta(tt.update); got != tt.want {
				t.Fatalf("extractUpdateMeta() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultHandlerQueuesWithoutLoggingText(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	hookLogger.SetLevel(logrus.DebugLevel)
	queue := make(chan *models.Update, 1)
	handler := defaultHandler(logrus.NewEntry(hookLogger), queue)

	update := &models.Update{
		Message: &models.Message{
			From: &models.User{ID: 99},
			Chat: models.Chat{ID: 199},
			Text: "/say secret plans",
		},
	}

	handler(context.Background(), nil, update)

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "telegram_update" {
		t.Fatalf("expected telegram_update entry, got %+v", entry)
	}
	if entry.Data["user_id"] != int64(99) || entry.Data["chat_id"] != int64(199) {
		t.Fatalf("expected user_id=99 and chat_id=199, got user_id=%v chat_id=%v", entry.Data["user_id"], entry.Data["chat_id"])
	}
	if entry.Data["command"] != "say" {
		t.Fatalf("expected command=say, got %v", entry.Data["command"])
	}
	if _, ok := entry.Data["text"]; ok {
		t.Fatalf("message text must not be logged")
	}

	select {
	case queued := <-queue:
		if queued != update {
			t.Fatalf("expected the received update to be queued")
		}
	default:
		t.Fatalf("expected update to be queued for the consumer")
	}
}

func TestDefaultHandlerDropsOnShutdown(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	queue := make(chan *models.Update) // unbuffered and never drained
	handler := defaultHandler(logrus.NewEntry(hookLogger), queue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handler(ctx, nil, &models.Update{Message: &models.Message{Chat: models.Chat{ID: 1}}})

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning for the dropped update, got %+v", entry)
	}
}

func TestErrorHandlerLogsPollingErrors(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	handle := errorHandler(logrus.NewEntry(hookLogger))

	handle(nil)
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("expected nil errors to be ignored")
	}

	handle(errors.New("conflict: terminated by other getUpdates request"))
	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "telegram_error" {
		t.Fatalf("expected telegram_error entry, got %+v", entry)
	}
}

func TestConsumeProcessesInOrderUntilCanceled(t *testing.T) {
	queue := make(chan *models.Update, 3)
	first := &models.Update{ID: 1}
	second := &models.Update{ID: 2}
	queue <- first
	queue <- second

	ctx, cancel := context.WithCancel(context.Background())
	handler := &cancelAfter{n: 2, cancel: cancel}

	done := make(chan struct{})
	go func() {
		consume(ctx, queue, handler)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop after cancellation")
	}

	if len(handler.seen) != 2 || handler.seen[0] != first || handler.seen[1] != second {
		t.Fatalf("expected updates in arrival order, got %v", handler.seen)
	}
}

type cancelAfter struct {
	n      int
	cancel context.CancelFunc
	seen   []*models.Update
}

func (c *cancelAfter) HandleUpdate(_ context.Context, update *models.Update) {
	c.seen = append(c.seen, update)
	if len(c.seen) == c.n {
		c.cancel()
	}
}
