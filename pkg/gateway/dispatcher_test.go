package gateway

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"relaybot/pkg/i18n"
	"relaybot/pkg/message"
	"relaybot/pkg/module"
	"relaybot/pkg/session"
)

type recordingPoster struct {
	mu     sync.Mutex
	texts  []string
	quoted []bool
}

func (p *recordingPoster) Post(_ context.Context, el message.Element, opts session.PostOptions) ([]session.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.texts = append(p.texts, el.Render(opts.Render))
	p.quoted = append(p.quoted, opts.Quote)
	return []session.Receipt{{ID: strconv.Itoa(len(p.texts))}}, nil
}

func (p *recordingPoster) Delete(context.Context, string) error {
	return nil
}

func (p *recordingPoster) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.texts...)
}

type recordingModule struct {
	name string
	err  error
	hold time.Duration

	mu        sync.Mutex
	requests  []module.Request
	active    atomic.Int32
	maxActive atomic.Int32
}

func (m *recordingModule) Name() string {
	return m.name
}

func (m *recordingModule) Handle(_ context.Context, req module.Request) error {
	current := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		seen := m.maxActive.Load()
		if current <= seen || m.maxActive.CompareAndSwap(seen, current) {
			break
		}
	}

	if m.hold > 0 {
		time.Sleep(m.hold)
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	return m.err
}

func (m *recordingModule) calls() []module.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]module.Request(nil), m.requests...)
}

func newTestRuntime(t *testing.T) *session.Runtime {
	t.Helper()

	bundle, err := i18n.LoadBuiltin("en_us")
	if err != nil {
		t.Fatalf("LoadBuiltin error: %v", err)
	}

	return &session.Runtime{
		Callbacks:     session.NewCallbackTable(),
		Locales:       bundle,
		DefaultLocale: "en_us",
	}
}

func newTestSession(rt *session.Runtime, targetID string, poster session.Poster) *session.MessageSession {
	target := session.Target{TargetFrom: "console", TargetID: targetID, SenderFrom: "console", SenderID: "operator"}
	return rt.NewSession(target, poster, session.TargetInfo{})
}

func newTestDispatcher(t *testing.T, mods ...module.Module) *dispatcher {
	t.Helper()

	registry, err := module.NewRegistry(mods...)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	d, err := newDispatcher(registry, "~", nil)
	if err != nil {
		t.Fatalf("newDispatcher error: %v", err)
	}

	return d
}

func TestDispatcherParse(t *testing.T) {
	d := &dispatcher{prefix: "~"}

	tests := []struct {
		input    string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{input: "~coin 3", wantName: "coin", wantArgs: []string{"3"}, wantOK: true},
		{input: "  ~Guess start 50 ", wantName: "guess", wantArgs: []string{"start", "50"}, wantOK: true},
		{input: "~", wantOK: false},
		{input: "coin 3", wantOK: false},
		{input: "", wantOK: false},
	}

	for _, tt := range tests {
		name, args, ok := d.parse(tt.input)
		if ok != tt.wantOK || name != tt.wantName || strings.Join(args, ",") != strings.Join(tt.wantArgs, ",") {
			t.Fatalf("parse(%q) = (%q, %v, %v), want (%q, %v, %v)", tt.input, name, args, ok, tt.wantName, tt.wantArgs, tt.wantOK)
		}
	}
}

func TestNewDispatcherRequiresRegistryAndPrefix(t *testing.T) {
	if _, err := newDispatcher(nil, "~", nil); err == nil {
		t.Fatal("expected error without registry")
	}

	registry, _ := module.NewRegistry()
	if _, err := newDispatcher(registry, " ", nil); err == nil {
		t.Fatal("expected error without prefix")
	}
}

func TestDispatcherRoutesToModule(t *testing.T) {
	mod := &recordingModule{name: "coin"}
	d := newTestDispatcher(t, mod)
	sess := newTestSession(newTestRuntime(t), "local", &recordingPoster{})

	for _, text := range []string{"~COIN 3 more", "hello", "~wiki go"} {
		if err := d.Handle(context.Background(), sess, message.Text(text)); err != nil {
			t.Fatalf("Handle(%q) error: %v", text, err)
		}
	}

	calls := mod.calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if got := strings.Join(calls[0].Args, " "); got != "3 more" {
		t.Fatalf("args = %q, want %q", got, "3 more")
	}
	if calls[0].Prefix != "~" || calls[0].Session != sess {
		t.Fatalf("unexpected request %+v", calls[0])
	}
}

func TestDispatcherAnswersConfigError(t *testing.T) {
	mod := &recordingModule{name: "coin", err: &module.ConfigError{Module: "coin", Detail: "limit <= 0"}}
	d := newTestDispatcher(t, mod)
	poster := &recordingPoster{}
	sess := newTestSession(newTestRuntime(t), "local", poster)

	if err := d.Handle(context.Background(), sess, message.Text("~coin")); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	sent := poster.sent()
	want := "An error occurred: The module configuration is invalid. Please contact the bot operator."
	if len(sent) != 1 || sent[0] != want {
		t.Fatalf("sent = %q, want [%q]", sent, want)
	}
	if !poster.quoted[0] {
		t.Fatal("expected config error notice to quote the command")
	}
}

func TestDispatcherWrapsModuleErrors(t *testing.T) {
	boom := errors.New("boom")
	d := newTestDispatcher(t, &recordingModule{name: "coin", err: boom})
	sess := newTestSession(newTestRuntime(t), "local", &recordingPoster{})

	err := d.Handle(context.Background(), sess, message.Text("~coin"))
	if !errors.Is(err, boom) {
		t.Fatalf("Handle error = %v, want wrapped boom", err)
	}
}

func TestDispatcherSerializesPerTarget(t *testing.T) {
	mod := &recordingModule{name: "coin", hold: 20 * time.Millisecond}
	d := newTestDispatcher(t, mod)
	rt := newTestRuntime(t)
	sess := newTestSession(rt, "local", &recordingPoster{})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Handle(context.Background(), sess, message.Text("~coin"))
		}()
	}
	wg.Wait()

	if got := mod.maxActive.Load(); got != 1 {
		t.Fatalf("max concurrent handlers for one target = %d, want 1", got)
	}
	if got := len(mod.calls()); got != 4 {
		t.Fatalf("calls = %d, want 4", got)
	}
}

func TestDispatcherForgetsIdleTargetLocks(t *testing.T) {
	mod := &recordingModule{name: "coin", hold: 5 * time.Millisecond}
	d := newTestDispatcher(t, mod)
	rt := newTestRuntime(t)

	for i := range 3 {
		sess := newTestSession(rt, "seq"+strconv.Itoa(i), &recordingPoster{})
		if err := d.Handle(context.Background(), sess, message.Text("~coin")); err != nil {
			t.Fatalf("Handle error: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := newTestSession(rt, "par"+strconv.Itoa(i%2), &recordingPoster{})
			_ = d.Handle(context.Background(), sess, message.Text("~coin"))
		}()
	}
	wg.Wait()

	if got := len(mod.calls()); got != 11 {
		t.Fatalf("calls = %d, want 11", got)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if got := len(d.targets); got != 0 {
		t.Fatalf("tracked target locks = %d, want 0", got)
	}
}
