package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"

	"github.com/nerrad567/iotmon/internal/infrastructure/config"
)

// fakeTelegram serves sendMessage and records the chat ids and texts.
type fakeTelegram struct {
	failChat string

	mu    sync.Mutex
	chats []string
	texts []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
		http.NotFound(w, r)
		return
	}
	chat := r.FormValue("chat_id")

	f.mu.Lock()
	f.chats = append(f.chats, chat)
	f.texts = append(f.texts, r.FormValue("text"))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if chat == f.failChat {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":` + chat + `,"type":"private"}}}`))
}

func newTestTelegram(t *testing.T, fake *fakeTelegram, chats ...int64) *TelegramNotifier {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	n, err := NewTelegramNotifier(
		config.TelegramConfig{Enabled: true, Token: "123456:TEST", ChatIDs: chats},
		bot.WithServerURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("NewTelegramNotifier() error = %v", err)
	}
	return n
}

func TestTelegramNotifier_Send(t *testing.T) {
	fake := &fakeTelegram{}
	n := newTestTelegram(t, fake, 42, 43)

	if err := n.Send(context.Background(), downMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if strings.Join(fake.chats, ",") != "42,43" {
		t.Errorf("chats = %v, want [42 43]", fake.chats)
	}
	if len(fake.texts) == 0 || !strings.Contains(fake.texts[0], "DOWN!  Please investigate.") {
		t.Errorf("texts = %q, want alert body", fake.texts)
	}
}

func TestTelegramNotifier_FailingChatDoesNotStopOthers(t *testing.T) {
	fake := &fakeTelegram{failChat: "42"}
	n := newTestTelegram(t, fake, 42, 43)

	err := n.Send(context.Background(), downMessage())
	if err == nil || !strings.Contains(err.Error(), "chat 42") {
		t.Fatalf("Send() error = %v, want failure for chat 42", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.chats) != 2 {
		t.Errorf("chats attempted = %v, want both", fake.chats)
	}
}
