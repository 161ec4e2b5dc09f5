package coin

import (
	"context"
	"errors"
	"testing"

	"relaybot/pkg/config"
	"relaybot/pkg/i18n"
	"relaybot/pkg/message"
	"relaybot/pkg/module"
	"relaybot/pkg/session"
)

// scripted returns the queued values, offset so that Between(1, limit)
// yields exactly the queued draw.
type scripted struct {
	draws []int
}

func (s *scripted) IntN(int) int {
	draw := s.draws[0]
	s.draws = s.draws[1:]
	return draw - 1
}

func locale(t *testing.T) i18n.Locale {
	t.Helper()

	bundle, err := i18n.LoadBuiltin("en_us")
	if err != nil {
		t.Fatalf("LoadBuiltin error: %v", err)
	}
	return bundle.Locale("en_us")
}

func defaultConfig() config.CoinConfig {
	return config.CoinConfig{Limit: 10000, FaceUpRate: 4997, FaceDownRate: 4997}
}

func TestFlipSingleCoin(t *testing.T) {
	cases := []struct {
		draw int
		want string
	}{
		{draw: 1, want: "You flipped a coin...\nIt landed heads up."},
		{draw: 4997, want: "You flipped a coin...\nIt landed tails up."},
		{draw: 9994, want: "You flipped a coin...\nIt landed on its edge!"},
	}

	for _, tc := range cases {
		m := New(defaultConfig(), &scripted{draws: []int{tc.draw}})
		got, err := m.Flip(locale(t), 1)
		if err != nil {
			t.Fatalf("Flip error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("Flip(draw=%d) = %q, want %q", tc.draw, got, tc.want)
		}
	}
}

func TestFlipManyCoins(t *testing.T) {
	loc := locale(t)

	m := New(defaultConfig(), &scripted{draws: []int{1, 2, 3}})
	got, _ := m.Flip(loc, 3)
	if got != "You flipped 3 coins...\nAll of them landed heads up." {
		t.Fatalf("all heads = %q", got)
	}

	m = New(defaultConfig(), &scripted{draws: []int{1, 5000, 5001}})
	got, _ = m.Flip(loc, 3)
	if got != "You flipped 3 coins, and\n 1 landed heads up and 2 landed tails up." {
		t.Fatalf("mix = %q", got)
	}

	m = New(defaultConfig(), &scripted{draws: []int{1, 10000}})
	got, _ = m.Flip(loc, 2)
	if got != "You flipped 2 coins, and\n 1 landed heads up, and 1 landed on their edge!" {
		t.Fatalf("mix with edge = %q", got)
	}
}

func TestFlipBounds(t *testing.T) {
	loc := locale(t)
	m := New(config.CoinConfig{Limit: 5, FaceUpRate: 2, FaceDownRate: 2}, &scripted{})

	cases := map[int]string{
		6:  "You can flip at most 5 coins.",
		-1: "The number of coins must not be negative.",
		0:  "You flipped nothing. Nothing happened.",
	}
	for count, want := range cases {
		got, err := m.Flip(loc, count)
		if err != nil {
			t.Fatalf("Flip(%d) error: %v", count, err)
		}
		if got != want {
			t.Fatalf("Flip(%d) = %q, want %q", count, got, want)
		}
	}
}

func TestFlipRejectsInvalidRates(t *testing.T) {
	invalid := []config.CoinConfig{
		{Limit: 10, FaceUpRate: 6, FaceDownRate: 5},
		{Limit: 10, FaceUpRate: -1, FaceDownRate: 5},
		{Limit: -1},
	}

	for _, cfg := range invalid {
		_, err := New(cfg, &scripted{}).Flip(nil, 1)
		var configErr *module.ConfigError
		if !errors.As(err, &configErr) {
			t.Fatalf("Flip(%+v) error = %v, want ConfigError", cfg, err)
		}
	}
}

type recordingPoster struct {
	texts []string
}

func (p *recordingPoster) Post(_ context.Context, el message.Element, opts session.PostOptions) ([]session.Receipt, error) {
	p.texts = append(p.texts, el.Render(opts.Render))
	return []session.Receipt{{ID: "1"}}, nil
}

func (p *recordingPoster) Delete(context.Context, string) error {
	return nil
}

func TestHandleParsesAmount(t *testing.T) {
	poster := &recordingPoster{}
	rt := &session.Runtime{}
	sess := rt.NewSession(session.Target{TargetFrom: "console", TargetID: "local"}, poster, session.TargetInfo{})

	m := New(defaultConfig(), &scripted{})
	if err := m.Handle(context.Background(), module.Request{Session: sess, Args: []string{"many"}}); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if err := m.Handle(context.Background(), module.Request{Session: sess, Args: []string{"0"}}); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	want := []string{"coin.message.invalid.amount", "coin.message.nocoin"}
	if len(poster.texts) != 2 || poster.texts[0] != want[0] || poster.texts[1] != want[1] {
		t.Fatalf("texts = %v, want %v", poster.texts, want)
	}
}
