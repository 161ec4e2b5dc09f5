// Package coin flips coins with configurable face probabilities.
package coin

import (
	"context"
	"fmt"
	"strconv"

	"relaybot/pkg/config"
	"relaybot/pkg/i18n"
	"relaybot/pkg/message"
	"relaybot/pkg/module"
	"relaybot/pkg/random"
	"relaybot/pkg/session"
)

const Name = "coin"

// Module flips up to Limit coins. A draw in [1, Limit] below FaceUpRate is
// heads, below FaceUpRate+FaceDownRate tails, anything else lands on edge.
type Module struct {
	cfg config.CoinConfig
	rng random.Source
}

// New creates the coin module.
func New(cfg config.CoinConfig, rng random.Source) *Module {
	return &Module{cfg: cfg, rng: rng}
}

func (m *Module) Name() string {
	return Name
}

// Handle flips the number of coins in the first argument, one by default.
func (m *Module) Handle(ctx context.Context, req module.Request) error {
	loc := req.Locale()

	count := 1
	if raw := req.Arg(0); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			_, err := req.Session.Send(ctx, message.Text(module.T(loc, "coin.message.invalid.amount", nil)), session.SendOptions{Quote: true})
			return err
		}
		count = n
	}

	text, err := m.Flip(loc, count)
	if err != nil {
		return err
	}

	_, err = req.Session.Send(ctx, message.Text(text), session.SendOptions{Quote: true})
	return err
}

// Validate checks the rate configuration.
func (m *Module) Validate() error {
	c := m.cfg
	if c.Limit <= 0 || c.FaceUpRate < 0 || c.FaceDownRate < 0 || c.FaceUpRate+c.FaceDownRate > c.Limit {
		return &module.ConfigError{
			Module: Name,
			Detail: fmt.Sprintf("need 0 <= face_up_rate (%d), 0 <= face_down_rate (%d), sum <= limit (%d), limit > 0",
				c.FaceUpRate, c.FaceDownRate, c.Limit),
		}
	}

	return nil
}

// Flip draws count coins and describes the outcome in loc.
func (m *Module) Flip(loc i18n.Locale, count int) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	switch {
	case count > m.cfg.Limit:
		return module.T(loc, "coin.message.invalid.out_of_range", map[string]any{"max": m.cfg.Limit}), nil
	case count < 0:
		return module.T(loc, "coin.message.invalid.amount", nil), nil
	case count == 0:
		return module.T(loc, "coin.message.nocoin", nil), nil
	}

	var heads, tails, stand int
	for range count {
		draw := random.Between(m.rng, 1, m.cfg.Limit)
		switch {
		case draw < m.cfg.FaceUpRate:
			heads++
		case draw < m.cfg.FaceUpRate+m.cfg.FaceDownRate:
			tails++
		default:
			stand++
		}
	}

	return describe(loc, count, heads, tails, stand), nil
}

func describe(loc i18n.Locale, count int, heads int, tails int, stand int) string {
	t := func(key string, args map[string]any) string {
		return module.T(loc, key, args)
	}

	if count == 1 {
		prompt := t("coin.message.single.prompt", nil)
		switch {
		case heads > 0:
			return prompt + "\n" + t("coin.message.single.head", nil)
		case tails > 0:
			return prompt + "\n" + t("coin.message.single.tail", nil)
		default:
			return prompt + "\n" + t("coin.message.single.stand", nil)
		}
	}

	prompt := t("coin.message.all.prompt", map[string]any{"count": count})
	switch {
	case heads == count:
		return prompt + "\n" + t("coin.message.all.head", nil)
	case tails == count:
		return prompt + "\n" + t("coin.message.all.tail", nil)
	case stand == count:
		return prompt + "\n" + t("coin.message.all.stand", nil)
	}

	out := t("coin.message.mix.prompt", map[string]any{"count": count}) + "\n"
	switch {
	case heads > 0 && tails > 0:
		out += t("coin.message.mix.head_and_tail", map[string]any{"head": heads, "tail": tails})
	case heads > 0:
		out += t("coin.message.mix.head", map[string]any{"head": heads})
	case tails > 0:
		out += t("coin.message.mix.tail", map[string]any{"tail": tails})
	}
	if stand > 0 {
		out += t("coin.message.mix.stand", map[string]any{"stand": stand})
	} else {
		out += t("message.end", nil)
	}

	return out
}
