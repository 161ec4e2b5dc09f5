package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"relaybot/pkg/logger"
	"relaybot/pkg/message"
	"relaybot/pkg/module"
	"relaybot/pkg/session"
)

const configErrorKey = "{error.config.invalid}"

// dispatcher routes inbound chains to modules and serializes handling per target.
type dispatcher struct {
	modules *module.Registry
	prefix  string
	log     *slog.Logger

	mu      sync.Mutex
	targets map[string]*targetLock
}

// targetLock guards one target while a module handles its message. refs
// counts holders and waiters and is guarded by dispatcher.mu.
type targetLock struct {
	mu   sync.Mutex
	refs int
}

// newDispatcher builds a dispatcher for prefix-addressed modules.
func newDispatcher(modules *module.Registry, prefix string, log *slog.Logger) (*dispatcher, error) {
	if modules == nil {
		return nil, errors.New("module registry is required")
	}
	if strings.TrimSpace(prefix) == "" {
		return nil, errors.New("command prefix is required")
	}

	return &dispatcher{
		modules: modules,
		prefix:  prefix,
		log:     logger.OrDefault(log, "gateway.dispatcher"),
		targets: make(map[string]*targetLock),
	}, nil
}

// Handle runs the module named by the chain, if any. It satisfies channel.Handler.
func (d *dispatcher) Handle(ctx context.Context, sess *session.MessageSession, chain message.Chain) error {
	name, args, ok := d.parse(chain.PlainText())
	if !ok {
		return nil
	}

	mod, ok := d.modules.Lookup(name)
	if !ok {
		d.log.Debug("Unknown module", "module", name, "target", sess.Target.TargetKey())
		return nil
	}

	key := sess.Target.TargetKey()
	d.acquire(key)
	defer d.release(key)

	d.log.Info("Dispatching module", "module", mod.Name(), "target", sess.Target.TargetKey(), "sender", sess.Target.SenderKey())
	err := mod.Handle(ctx, module.Request{Session: sess, Args: args, Prefix: d.prefix})
	if err == nil {
		return nil
	}

	var configErr *module.ConfigError
	if errors.As(err, &configErr) {
		d.log.Error("Module configuration invalid", "module", configErr.Module, "detail", configErr.Detail)
		var composer message.Composer
		if rt := sess.Runtime(); rt != nil {
			composer = rt.Composer
		}
		notice := message.NewChain(composer.Error(configErrorKey, sess.Locale(), nil, true))
		if _, sendErr := sess.Send(ctx, notice, session.SendOptions{Quote: true}); sendErr != nil {
			return fmt.Errorf("report config error for %s: %w", mod.Name(), sendErr)
		}
		return nil
	}

	return fmt.Errorf("handle %s: %w", mod.Name(), err)
}

// parse splits "<prefix><name> args..." into its parts.
func (d *dispatcher) parse(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, d.prefix) {
		return "", nil, false
	}

	fields := strings.Fields(strings.TrimPrefix(trimmed, d.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}

	return strings.ToLower(fields[0]), fields[1:], true
}

// acquire blocks until the caller holds the lock for target.
func (d *dispatcher) acquire(target string) {
	d.mu.Lock()
	lock, ok := d.targets[target]
	if !ok {
		lock = &targetLock{}
		d.targets[target] = lock
	}
	lock.refs++
	d.mu.Unlock()

	lock.mu.Lock()
}

// release unlocks target and forgets its lock once nobody holds or waits on it.
func (d *dispatcher) release(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock := d.targets[target]
	lock.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(d.targets, target)
	}
}
