package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"relaybot/pkg/channel"
	"relaybot/pkg/config"
	"relaybot/pkg/logger"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/mymmrac/telego"
)

type fakeBot struct {
	mu       sync.Mutex
	texts    []*telego.SendMessageParams
	photos   []*telego.SendPhotoParams
	voices   []*telego.SendVoiceParams
	deleted  []int
	nextID   int
	failText bool
}

func (b *fakeBot) message() *telego.Message {
	b.nextID++
	return &telego.Message{MessageID: b.nextID}
}

func (b *fakeBot) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failText {
		return nil, errors.New("chat not found")
	}
	b.texts = append(b.texts, params)
	return b.message(), nil
}

func (b *fakeBot) SendPhoto(_ context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.photos = append(b.photos, params)
	return b.message(), nil
}

func (b *fakeBot) SendVoice(_ context.Context, params *telego.SendVoiceParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.voices = append(b.voices, params)
	return b.message(), nil
}

func (b *fakeBot) SendChatAction(context.Context, *telego.SendChatActionParams) error {
	return nil
}

func (b *fakeBot) DeleteMessage(_ context.Context, params *telego.DeleteMessageParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deleted = append(b.deleted, params.MessageID)
	return nil
}

type fakeFiles struct {
	missing map[string]bool
}

func (f fakeFiles) GetFile(_ context.Context, params *telego.GetFileParams) (*telego.File, error) {
	if f.missing[params.FileID] {
		return nil, errors.New("file is too big")
	}
	return &telego.File{FileID: params.FileID, FilePath: "files/" + params.FileID}, nil
}

func (f fakeFiles) FileDownloadURL(path string) string {
	return "https://api.telegram.test/file/" + path
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	adapter, err := NewAdapter(config.TelegramConfig{Token: "token", AllowFrom: []string{"7"}}, channel.Deps{Runtime: &session.Runtime{}}, logger.Discard())
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}
	return adapter
}

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(config.TelegramConfig{Token: " "}, channel.Deps{}, nil); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestPosterQuotesOnlyWhenAsked(t *testing.T) {
	bot := &fakeBot{}
	p := &poster{api: bot, chatID: 42, replyTo: 9}

	if _, err := p.Post(context.Background(), message.NewPlain("first"), session.PostOptions{Quote: true}); err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if _, err := p.Post(context.Background(), message.NewPlain("second"), session.PostOptions{}); err != nil {
		t.Fatalf("Post error: %v", err)
	}

	if bot.texts[0].ReplyParameters == nil || bot.texts[0].ReplyParameters.MessageID != 9 {
		t.Fatalf("first reply = %+v, want message 9", bot.texts[0].ReplyParameters)
	}
	if bot.texts[1].ReplyParameters != nil {
		t.Fatalf("second reply = %+v, want nil", bot.texts[1].ReplyParameters)
	}

	direct := &poster{api: bot, chatID: 42}
	if _, err := direct.Post(context.Background(), message.NewPlain("direct"), session.PostOptions{Quote: true}); err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if bot.texts[2].ReplyParameters != nil {
		t.Fatal("direct poster quoted without an inbound message")
	}
}

func TestPosterSendsMediaAndFlattensEmbeds(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "a.png")
	voicePath := filepath.Join(dir, "v.ogg")
	for _, path := range []string{imagePath, voicePath} {
		if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	bot := &fakeBot{}
	p := &poster{api: bot, chatID: 42, replyTo: 3}
	ctx := context.Background()

	if _, err := p.Post(ctx, message.Image{Path: imagePath}, session.PostOptions{}); err != nil {
		t.Fatalf("Post image error: %v", err)
	}
	if _, err := p.Post(ctx, message.Voice{Path: voicePath}, session.PostOptions{}); err != nil {
		t.Fatalf("Post voice error: %v", err)
	}
	if len(bot.photos) != 1 || len(bot.voices) != 1 {
		t.Fatalf("photos = %d voices = %d, want 1 each", len(bot.photos), len(bot.voices))
	}

	embed := message.Embed{Title: "Title", Image: &message.Image{Path: imagePath}, Fields: []message.EmbedField{{Name: "a", Value: "1"}}}
	receipts, err := p.Post(ctx, embed, session.PostOptions{Quote: true})
	if err != nil {
		t.Fatalf("Post embed error: %v", err)
	}
	if len(receipts) != 2 {
		t.Fatalf("embed receipts = %d, want 2", len(receipts))
	}
	if got := bot.texts[0].Text; got != "Title\na: 1" {
		t.Fatalf("embed text = %q", got)
	}
	if bot.texts[0].ReplyParameters == nil {
		t.Fatal("first embed part not quoted")
	}
	if bot.photos[1].ReplyParameters != nil {
		t.Fatal("second embed part quoted")
	}
}

func TestPosterDelete(t *testing.T) {
	bot := &fakeBot{}
	p := &poster{api: bot, chatID: 42}

	if err := p.Delete(context.Background(), "15"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if len(bot.deleted) != 1 || bot.deleted[0] != 15 {
		t.Fatalf("deleted = %v, want [15]", bot.deleted)
	}
	if err := p.Delete(context.Background(), "abc"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestHandleMessageBuildsSession(t *testing.T) {
	adapter := newTestAdapter(t)
	bot := &fakeBot{}

	var gotTarget session.Target
	var gotBody string
	handler := func(ctx context.Context, sess *session.MessageSession, chain message.Chain) error {
		gotTarget = sess.Target
		gotBody = chain.PlainText()
		_, err := sess.Send(ctx, message.Text("pong"), session.SendOptions{Quote: true})
		return err
	}

	msg := &telego.Message{
		MessageID: 5,
		Chat:      telego.Chat{ID: -100},
		From:      &telego.User{ID: 7},
		Text:      "ping",
	}
	adapter.handleMessage(context.Background(), bot, fakeFiles{}, msg, handler)

	want := session.Target{TargetFrom: "telegram", TargetID: "-100", SenderFrom: "telegram", SenderID: "7"}
	if gotTarget != want {
		t.Fatalf("target = %+v, want %+v", gotTarget, want)
	}
	if gotBody != "ping" {
		t.Fatalf("body = %q, want ping", gotBody)
	}
	if len(bot.texts) != 1 || bot.texts[0].ReplyParameters.MessageID != 5 {
		t.Fatalf("reply not quoted: %+v", bot.texts)
	}

	called := false
	msg.From = &telego.User{ID: 8}
	adapter.handleMessage(context.Background(), bot, fakeFiles{}, msg, func(context.Context, *session.MessageSession, message.Chain) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("handler called for unauthorized sender")
	}
}

func TestAttachmentsResolveDownloadURLs(t *testing.T) {
	adapter := newTestAdapter(t)
	msg := &telego.Message{
		Photo: []telego.PhotoSize{{FileID: "small"}, {FileID: "large"}},
		Voice: &telego.Voice{FileID: "voice"},
		Audio: &telego.Audio{FileID: "gone"},
	}

	got := adapter.attachments(context.Background(), fakeFiles{missing: map[string]bool{"gone": true}}, msg)
	if len(got) != 2 {
		t.Fatalf("attachments = %d, want 2", len(got))
	}
	if got[0].URL != "https://api.telegram.test/file/files/large" {
		t.Fatalf("photo url = %q", got[0].URL)
	}
	if got[1].URL != "https://api.telegram.test/file/files/voice" {
		t.Fatalf("voice url = %q", got[1].URL)
	}
}

func TestOpenRequiresConnection(t *testing.T) {
	adapter := newTestAdapter(t)
	target := session.Target{TargetFrom: "telegram", TargetID: "12"}

	if _, err := adapter.Open(context.Background(), target); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Open error = %v, want ErrNotConnected", err)
	}

	adapter.api = &fakeBot{}
	if _, err := adapter.Open(context.Background(), target); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if _, err := adapter.Open(context.Background(), session.Target{TargetID: "abc"}); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}

func TestBotOptionsProxy(t *testing.T) {
	opts, err := botOptions("")
	if err != nil || len(opts) != 0 {
		t.Fatalf("botOptions empty = %v, %v", opts, err)
	}

	opts, err = botOptions("http://127.0.0.1:8080")
	if err != nil || len(opts) != 1 {
		t.Fatalf("botOptions proxy = %d options, err %v", len(opts), err)
	}
}
