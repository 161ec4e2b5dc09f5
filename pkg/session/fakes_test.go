package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"relaybot/pkg/message"
)

type postCall struct {
	Element message.Element
	Quote   bool
}

type fakePoster struct {
	mu        sync.Mutex
	calls     []postCall
	deleted   []string
	failAt    int
	failWith  error
	deleteErr map[string]error
	nextID    int
}

func newFakePoster() *fakePoster {
	return &fakePoster{failAt: -1}
}

func (p *fakePoster) Post(_ context.Context, el message.Element, opts PostOptions) ([]Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	index := len(p.calls)
	p.calls = append(p.calls, postCall{Element: el, Quote: opts.Quote})
	if index == p.failAt {
		err := p.failWith
		if err == nil {
			err = errors.New("permission denied")
		}
		return nil, err
	}

	p.nextID++
	return []Receipt{{ID: fmt.Sprintf("m%d", p.nextID), Raw: el}}, nil
}

func (p *fakePoster) Delete(_ context.Context, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deleted = append(p.deleted, messageID)
	return p.deleteErr[messageID]
}

func (p *fakePoster) Calls() []postCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]postCall(nil), p.calls...)
}

type fakeOpener struct {
	platform string

	mu      sync.Mutex
	posters map[string]*fakePoster
	failFor map[string]bool
}

func newFakeOpener(platform string) *fakeOpener {
	return &fakeOpener{platform: platform, posters: map[string]*fakePoster{}, failFor: map[string]bool{}}
}

func (o *fakeOpener) Platform() string { return o.platform }

func (o *fakeOpener) Open(_ context.Context, target Target) (Poster, error) {
	return o.poster(target.TargetID), nil
}

func (o *fakeOpener) poster(id string) *fakePoster {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.posters[id]
	if !ok {
		p = newFakePoster()
		if o.failFor[id] {
			p.failAt = 0
		}
		o.posters[id] = p
	}
	return p
}

type memoryStore struct {
	info    map[string]TargetInfo
	enabled map[string][]string
}

func (s *memoryStore) Lookup(_ context.Context, id string) (TargetInfo, error) {
	return s.info[id], nil
}

func (s *memoryStore) EnabledFor(_ context.Context, module string, platform string) ([]string, error) {
	return s.enabled[module+"@"+platform], nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	targets []Target
}

func (r *memoryRecorder) Record(_ context.Context, target Target, _ message.Chain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.targets = append(r.targets, target)
	return nil
}
