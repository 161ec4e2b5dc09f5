package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"relaybot/pkg/bus"
	"relaybot/pkg/message"
)

// Opener opens posters for targets on one platform.
type Opener interface {
	// Platform is the canonical address token, e.g. "discord".
	Platform() string
	Open(ctx context.Context, target Target) (Poster, error)
}

// FetchedSession is a session resolved from an address rather than an
// inbound message. It has nothing to quote.
type FetchedSession struct {
	*MessageSession
}

// SendDirect sends chain without quoting.
func (f *FetchedSession) SendDirect(ctx context.Context, chain message.Chain) (*Delivery, error) {
	return f.Send(ctx, chain, SendOptions{})
}

// Resolver turns "platform|id" addresses into sessions.
type Resolver struct {
	runtime *Runtime

	mu      sync.RWMutex
	openers map[string]Opener
	order   []string
}

// NewResolver creates a resolver without platforms.
func NewResolver(rt *Runtime) *Resolver {
	return &Resolver{
		runtime: rt,
		openers: make(map[string]Opener),
	}
}

// Register makes a platform addressable. Later registrations replace earlier
// ones for the same platform.
func (r *Resolver) Register(opener Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	platform := opener.Platform()
	if _, ok := r.openers[platform]; !ok {
		r.order = append(r.order, platform)
	}
	r.openers[platform] = opener
}

// Platforms lists registered platforms in registration order.
func (r *Resolver) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// FetchTarget resolves targetID and the optional senderID. The sender
// defaults to the target; a sender without a known platform token keeps the
// target's platform and its raw id. It returns nil when the target's platform
// token is not recognized.
func (r *Resolver) FetchTarget(ctx context.Context, targetID string, senderID string) *FetchedSession {
	platforms := r.Platforms()

	targetFrom, rawTarget, ok := ParseAddress(targetID, platforms)
	if !ok {
		return nil
	}

	target := Target{TargetFrom: targetFrom, TargetID: rawTarget, SenderFrom: targetFrom, SenderID: rawTarget}
	if senderID != "" {
		target.SenderID = senderID
		if senderFrom, rawSender, ok := ParseAddress(senderID, platforms); ok {
			target.SenderFrom, target.SenderID = senderFrom, rawSender
		}
	}

	r.mu.RLock()
	opener := r.openers[targetFrom]
	r.mu.RUnlock()

	info := r.runtime.Info(ctx, target.TargetKey())
	poster := &lazyPoster{opener: opener, target: target}

	return &FetchedSession{MessageSession: r.runtime.NewSession(target, poster, info)}
}

// FetchTargetList resolves ids in order, dropping unresolved and muted targets.
func (r *Resolver) FetchTargetList(ctx context.Context, ids []string) []*FetchedSession {
	sessions := make([]*FetchedSession, 0, len(ids))
	for _, id := range ids {
		fetched := r.FetchTarget(ctx, id, "")
		if fetched == nil || fetched.Info.Muted {
			continue
		}
		sessions = append(sessions, fetched)
	}

	return sessions
}

// Post is one logical message for fan-out.
type Post struct {
	// Text is the literal text, or the locale key when I18n is set.
	Text  string
	I18n  bool
	Args  map[string]any
	Chain message.Chain
}

func (p Post) build() message.Chain {
	if p.Chain.Len() > 0 {
		return p.Chain
	}
	if p.I18n {
		return message.NewChain(message.NewI18N(p.Text, p.Args))
	}

	return message.Text(p.Text)
}

// PostResult is the outcome for one fan-out recipient.
type PostResult struct {
	Target   string
	Delivery *Delivery
	Err      error
}

// PostMessage sends post to exactly the explicit targets, muted or not, or
// to every unmuted target with module enabled on each registered platform.
// A failing recipient is logged and skipped.
func (r *Resolver) PostMessage(ctx context.Context, module string, post Post, targets []string) []PostResult {
	log := r.runtime.logger().With("component", "session.fanout", "module", module)

	var sessions []*FetchedSession
	if len(targets) == 0 {
		sessions = r.FetchTargetList(ctx, r.enabledTargets(ctx, module))
	} else {
		sessions = r.fetchExplicit(ctx, targets)
	}

	results := make([]PostResult, 0, len(sessions))

	for _, fetched := range sessions {
		key := fetched.Target.TargetKey()

		delivery, err := fetched.SendDirect(ctx, post.build())
		results = append(results, PostResult{Target: key, Delivery: delivery, Err: err})
		if err != nil {
			log.Error("Post to target failed", "target", key, "error", err)
			continue
		}

		if r.runtime != nil && r.runtime.Analytics {
			r.runtime.Publish(ctx, bus.Event{
				Type:     bus.EventScheduledPost,
				Platform: fetched.Target.TargetFrom,
				Target:   key,
				Module:   module,
			})
		}
	}

	log.Info("Fan-out finished", "recipients", len(sessions), "failed", countFailed(results))
	return results
}

func (r *Resolver) fetchExplicit(ctx context.Context, ids []string) []*FetchedSession {
	sessions := make([]*FetchedSession, 0, len(ids))
	for _, id := range ids {
		if fetched := r.FetchTarget(ctx, id, ""); fetched != nil {
			sessions = append(sessions, fetched)
		}
	}

	return sessions
}

func (r *Resolver) enabledTargets(ctx context.Context, module string) []string {
	if r.runtime == nil || r.runtime.Targets == nil {
		return nil
	}

	var ids []string
	for _, platform := range r.Platforms() {
		enabled, err := r.runtime.Targets.EnabledFor(ctx, module, platform)
		if err != nil {
			r.runtime.logger().With("component", "session.fanout").Error("List enabled targets failed", "module", module, "platform", platform, "error", err)
			continue
		}
		ids = append(ids, enabled...)
	}

	return ids
}

func countFailed(results []PostResult) int {
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}

	return failed
}

var errNoOpener = errors.New("platform is not registered")

// lazyPoster opens the platform poster on first use.
type lazyPoster struct {
	opener Opener
	target Target

	once   sync.Once
	poster Poster
	err    error
}

func (p *lazyPoster) open(ctx context.Context) (Poster, error) {
	p.once.Do(func() {
		if p.opener == nil {
			p.err = errNoOpener
			return
		}
		p.poster, p.err = p.opener.Open(ctx, p.target)
		if p.err != nil {
			p.err = fmt.Errorf("open %s: %w", p.target.TargetKey(), p.err)
		}
	})

	return p.poster, p.err
}

func (p *lazyPoster) Post(ctx context.Context, el message.Element, opts PostOptions) ([]Receipt, error) {
	poster, err := p.open(ctx)
	if err != nil {
		return nil, err
	}

	opts.Quote = false
	return poster.Post(ctx, el, opts)
}

func (p *lazyPoster) Delete(ctx context.Context, messageID string) error {
	poster, err := p.open(ctx)
	if err != nil {
		return err
	}

	return poster.Delete(ctx, messageID)
}
