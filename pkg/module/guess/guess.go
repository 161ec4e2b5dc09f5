// Package guess is a number guessing game shared by everyone in a target.
package guess

import (
	"context"
	"strconv"
	"strings"

	"relaybot/pkg/message"
	"relaybot/pkg/module"
	"relaybot/pkg/playstate"
	"relaybot/pkg/random"
	"relaybot/pkg/session"
)

const (
	Name       = "guess"
	DefaultMax = 100

	fieldAnswer = "answer"
	fieldTries  = "tries"
)

// Module keeps one game per target in the play-state store.
type Module struct {
	store *playstate.Store
	rng   random.Source
	max   int
}

// New creates the guess module. max <= 1 uses DefaultMax.
func New(store *playstate.Store, rng random.Source, max int) *Module {
	if max <= 1 {
		max = DefaultMax
	}

	return &Module{store: store, rng: rng, max: max}
}

func (m *Module) Name() string {
	return Name
}

// Handle understands "start [max]", "stop" and a numeric guess.
func (m *Module) Handle(ctx context.Context, req module.Request) error {
	sess := req.Session
	state := m.store.State(Name, sess.Target.TargetKey(), sess.Target.SenderKey(), true)
	loc := req.Locale()

	reply := func(key string, args map[string]any) error {
		_, err := sess.Send(ctx, message.Text(module.T(loc, key, args)), session.SendOptions{Quote: true})
		return err
	}

	switch arg := strings.ToLower(req.Arg(0)); arg {
	case "start", "":
		if state.Check() {
			return reply("guess.message.running", nil)
		}

		limit := m.max
		if n, err := strconv.Atoi(req.Arg(1)); err == nil && n > 1 {
			limit = n
		}

		state.Update(map[string]any{
			fieldAnswer: random.Between(m.rng, 1, limit),
			fieldTries:  0,
		})
		state.Enable()
		return reply("guess.message.start", map[string]any{"max": limit})
	case "stop":
		if !state.Check() {
			return reply("guess.message.not_running", map[string]any{"prefix": req.Prefix})
		}

		state.Disable()
		return reply("guess.message.stopped", nil)
	default:
		if !state.Check() {
			return reply("guess.message.not_running", map[string]any{"prefix": req.Prefix})
		}

		guess, err := strconv.Atoi(arg)
		if err != nil {
			return reply("guess.message.invalid", nil)
		}

		answer, _ := state.Get(fieldAnswer, 0).(int)
		tries, _ := state.Get(fieldTries, 0).(int)
		tries++
		state.Update(map[string]any{fieldTries: tries})

		switch {
		case guess < answer:
			return reply("guess.message.higher", nil)
		case guess > answer:
			return reply("guess.message.lower", nil)
		}

		state.Disable()
		return reply("guess.message.correct", map[string]any{"answer": answer, "tries": tries})
	}
}
