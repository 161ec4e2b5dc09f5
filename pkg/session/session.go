package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"relaybot/pkg/bus"
	"relaybot/pkg/i18n"
	"relaybot/pkg/message"
)

// Receipt is the outcome of one native send call.
type Receipt struct {
	ID  string
	Raw any
}

// PostOptions carries per-element send settings.
type PostOptions struct {
	// Quote replies to the inbound message, when there is one.
	Quote bool
	// Render localizes elements the platform has to flatten.
	Render message.RenderContext
}

// Poster performs native sends for one target.
type Poster interface {
	// Post sends one sendable element. Kinds the platform cannot carry
	// return no receipts and no error.
	Post(ctx context.Context, el message.Element, opts PostOptions) ([]Receipt, error)
	Delete(ctx context.Context, messageID string) error
}

// SendOptions tunes a single Send.
type SendOptions struct {
	// Quote replies to the inbound message with the first element only.
	Quote        bool
	BypassSafety bool
	Callback     Callback
}

// MessageSession is one conversation with a target.
type MessageSession struct {
	Target Target
	Info   TargetInfo

	runtime *Runtime
	poster  Poster
	locale  i18n.Locale
	log     *slog.Logger

	mu   sync.Mutex
	sent []message.Chain
}

// Locale returns the session locale, nil when no bundle is configured.
func (s *MessageSession) Locale() i18n.Locale {
	return s.locale
}

// TimezoneOffset returns the target's offset from UTC.
func (s *MessageSession) TimezoneOffset() time.Duration {
	return s.Info.TimezoneOffset
}

// Runtime returns the shared collaborators.
func (s *MessageSession) Runtime() *Runtime {
	return s.runtime
}

// Sent returns the chains sent so far, oldest first.
func (s *MessageSession) Sent() []message.Chain {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.sent)
}

// Send delivers chain element by element. An unsafe chain is replaced by the
// unsafe notice unless opts.BypassSafety is set. On a native failure the
// delivery made so far is returned together with the error.
func (s *MessageSession) Send(ctx context.Context, chain message.Chain, opts SendOptions) (*Delivery, error) {
	if !opts.BypassSafety && !chain.IsSafe(s.runtime.safety()) {
		s.log.Warn("Unsafe chain replaced", "elements", chain.Len())
		opts.BypassSafety = true
		return s.Send(ctx, message.UnsafeNotice(), opts)
	}

	s.record(ctx, chain)

	delivery := &Delivery{Session: s}
	sendable := chain.AsSendable(s)

	for index, el := range sendable.Elements() {
		quote := opts.Quote && index == 0
		s.log.Info("Sending element",
			"platform", s.Target.TargetFrom,
			"index", index,
			"kind", string(el.Kind()),
			"quote", quote,
		)

		receipts, err := s.poster.Post(ctx, el, PostOptions{Quote: quote, Render: s})
		delivery.add(receipts)
		if err != nil {
			s.register(delivery, opts.Callback)
			s.runtime.Publish(ctx, bus.Event{
				Type:     bus.EventSendFailed,
				Platform: s.Target.TargetFrom,
				Target:   s.Target.TargetKey(),
				Sender:   s.Target.SenderKey(),
				Count:    len(delivery.IDs),
				Error:    err.Error(),
			})
			return delivery, fmt.Errorf("send %s element: %w", el.Kind(), err)
		}
	}

	s.register(delivery, opts.Callback)
	s.runtime.Publish(ctx, bus.Event{
		Type:     bus.EventChainSent,
		Platform: s.Target.TargetFrom,
		Target:   s.Target.TargetKey(),
		Sender:   s.Target.SenderKey(),
		Count:    len(delivery.IDs),
	})

	return delivery, nil
}

func (s *MessageSession) record(ctx context.Context, chain message.Chain) {
	s.mu.Lock()
	s.sent = append(s.sent, chain)
	s.mu.Unlock()

	if s.runtime == nil || s.runtime.History == nil {
		return
	}
	if err := s.runtime.History.Record(ctx, s.Target, chain); err != nil {
		s.log.Error("Record sent chain failed", "error", err)
	}
}

func (s *MessageSession) register(delivery *Delivery, fn Callback) {
	if fn == nil || s.runtime == nil || s.runtime.Callbacks == nil {
		return
	}

	for _, id := range delivery.IDs {
		s.runtime.Callbacks.Register(s.Target.TargetFrom, id, fn)
	}
}

func (rt *Runtime) safety() message.SafetyCheck {
	if rt == nil {
		return nil
	}

	return rt.Safety
}

// DeleteResult is the outcome of deleting one delivered message.
type DeleteResult struct {
	ID  string
	Err error
}

// OK reports whether the message was deleted.
func (r DeleteResult) OK() bool {
	return r.Err == nil
}

// Delivery references every native message produced by one Send.
type Delivery struct {
	Session  *MessageSession
	IDs      []string
	Receipts []Receipt
}

func (d *Delivery) add(receipts []Receipt) {
	for _, receipt := range receipts {
		d.Receipts = append(d.Receipts, receipt)
		if receipt.ID != "" {
			d.IDs = append(d.IDs, receipt.ID)
		}
	}
}

// Delete removes every delivered message on a best-effort basis. Failures are
// logged and reported per id, never returned as an error.
func (d *Delivery) Delete(ctx context.Context) []DeleteResult {
	if d == nil || d.Session == nil {
		return nil
	}

	results := make([]DeleteResult, 0, len(d.IDs))
	for _, id := range d.IDs {
		err := d.Session.poster.Delete(ctx, id)
		if err != nil {
			d.Session.log.Error("Delete message failed", "message_id", id, "error", err)
		}
		results = append(results, DeleteResult{ID: id, Err: err})
	}

	return results
}
