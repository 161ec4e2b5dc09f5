package twitch

import (
	"context"
	"errors"
	"testing"

	"relaybot/pkg/channel"
	"relaybot/pkg/config"
	"relaybot/pkg/logger"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/gempir/go-twitch-irc/v4"
)

type line struct {
	Channel string
	ReplyTo string
	Text    string
}

type fakeClient struct {
	lines []line
}

func (f *fakeClient) Say(channel string, text string) {
	f.lines = append(f.lines, line{Channel: channel, Text: text})
}

func (f *fakeClient) Reply(channel string, parentMsgID string, text string) {
	f.lines = append(f.lines, line{Channel: channel, ReplyTo: parentMsgID, Text: text})
}

func TestNewAdapterRequiresCredentials(t *testing.T) {
	if _, err := NewAdapter(config.TwitchConfig{Username: "bot"}, channel.Deps{}, nil); err == nil {
		t.Fatal("expected error without oauth")
	}
	if _, err := NewAdapter(config.TwitchConfig{OAuth: "oauth:x"}, channel.Deps{}, nil); err == nil {
		t.Fatal("expected error without username")
	}
}

func TestPosterSendsTextAndDropsMedia(t *testing.T) {
	client := &fakeClient{}
	p := &poster{client: client, channel: "stream", replyTo: "m1"}
	ctx := context.Background()

	if receipts, err := p.Post(ctx, message.Image{Path: "/tmp/x.png"}, session.PostOptions{}); err != nil || receipts != nil {
		t.Fatalf("image Post = %v, %v; want dropped", receipts, err)
	}
	if receipts, err := p.Post(ctx, message.Voice{Path: "/tmp/x.ogg"}, session.PostOptions{}); err != nil || receipts != nil {
		t.Fatalf("voice Post = %v, %v; want dropped", receipts, err)
	}

	if _, err := p.Post(ctx, message.NewPlain("first\nline"), session.PostOptions{Quote: true}); err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if _, err := p.Post(ctx, message.NewPlain("second"), session.PostOptions{}); err != nil {
		t.Fatalf("Post error: %v", err)
	}

	if len(client.lines) != 2 {
		t.Fatalf("lines = %+v, want 2", client.lines)
	}
	if client.lines[0] != (line{Channel: "stream", ReplyTo: "m1", Text: "first line"}) {
		t.Fatalf("quoted line = %+v", client.lines[0])
	}
	if client.lines[1] != (line{Channel: "stream", Text: "second"}) {
		t.Fatalf("plain line = %+v", client.lines[1])
	}
}

func TestPosterFlattensEmbedToOneLine(t *testing.T) {
	client := &fakeClient{}
	p := &poster{client: client, channel: "stream"}

	embed := message.NewEmbed("Title", "Body", message.EmbedField{Name: "k", Value: "v"})
	embed.Image = &message.Image{Path: "/tmp/x.png"}
	embed.Timestamp = 0

	if _, err := p.Post(context.Background(), embed, session.PostOptions{}); err != nil {
		t.Fatalf("Post error: %v", err)
	}

	if len(client.lines) != 1 {
		t.Fatalf("lines = %+v, want a single line", client.lines)
	}
	if client.lines[0].Text != "Title Body k: v" {
		t.Fatalf("embed line = %q", client.lines[0].Text)
	}
}

func TestPosterDeleteUnsupported(t *testing.T) {
	p := &poster{client: &fakeClient{}, channel: "stream"}
	if err := p.Delete(context.Background(), "x"); !errors.Is(err, ErrDeleteUnsupported) {
		t.Fatalf("Delete error = %v, want ErrDeleteUnsupported", err)
	}
}

func TestHandleMessageSkipsOwnMessages(t *testing.T) {
	adapter, err := NewAdapter(config.TwitchConfig{Username: "relaybot", OAuth: "oauth:x"}, channel.Deps{Runtime: &session.Runtime{}}, logger.Discard())
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}

	client := &fakeClient{}
	var targets []string
	handler := func(ctx context.Context, sess *session.MessageSession, chain message.Chain) error {
		targets = append(targets, sess.Target.TargetKey())
		_, err := sess.Send(ctx, message.Text("echo: ", chain.PlainText()), session.SendOptions{Quote: true})
		return err
	}

	adapter.handleMessage(context.Background(), client, twitch.PrivateMessage{
		User: twitch.User{ID: "1", Name: "relaybot"}, Channel: "stream", Message: "loop", ID: "m0",
	}, handler)
	adapter.handleMessage(context.Background(), client, twitch.PrivateMessage{
		User: twitch.User{ID: "2", Name: "viewer"}, Channel: "#stream", Message: "hello", ID: "m1",
	}, handler)

	if len(targets) != 1 || targets[0] != "twitch|stream" {
		t.Fatalf("targets = %v, want [twitch|stream]", targets)
	}
	if len(client.lines) != 1 || client.lines[0].ReplyTo != "m1" || client.lines[0].Text != "echo: hello" {
		t.Fatalf("lines = %+v", client.lines)
	}
}

func TestOpenRequiresConnection(t *testing.T) {
	adapter, err := NewAdapter(config.TwitchConfig{Username: "relaybot", OAuth: "oauth:x"}, channel.Deps{}, nil)
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}

	if _, err := adapter.Open(context.Background(), session.Target{TargetID: "stream"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Open error = %v, want ErrNotConnected", err)
	}
}

func TestDisplayRewritesMentions(t *testing.T) {
	if got := Display("thanks @viewer"); got != "thanks twitch|viewer" {
		t.Fatalf("Display = %q", got)
	}
}
