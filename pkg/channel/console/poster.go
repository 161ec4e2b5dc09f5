package console

import (
	"context"
	"fmt"
	"sync"

	"relaybot/pkg/message"
	"relaybot/pkg/session"
)

// poster prints elements as bot cards. Media is shown by its local path.
type poster struct {
	adapter *Adapter

	mu   sync.Mutex
	live map[string]struct{}
}

func (p *poster) Post(_ context.Context, el message.Element, opts session.PostOptions) ([]session.Receipt, error) {
	var content string
	switch typed := el.(type) {
	case message.Image:
		content = "[Image] " + typed.Path
	case message.Voice:
		content = "[Voice] " + typed.Path
	default:
		content = el.Render(opts.Render)
	}
	if content == "" {
		return nil, nil
	}

	id := p.adapter.nextID()
	p.mu.Lock()
	p.live[id] = struct{}{}
	p.mu.Unlock()

	p.adapter.emit(entry{role: roleBot, id: id, content: content})
	return []session.Receipt{{ID: id, Raw: content}}, nil
}

func (p *poster) Delete(_ context.Context, messageID string) error {
	p.mu.Lock()
	_, ok := p.live[messageID]
	delete(p.live, messageID)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown console message %q", messageID)
	}

	p.adapter.emit(entry{role: roleDeleted, id: messageID})
	return nil
}
