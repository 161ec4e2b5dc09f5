// Package console implements a local terminal platform for trying modules
// without a chat network.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"relaybot/pkg/channel"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/charmbracelet/lipgloss"
)

const (
	channelName = "console"
	// LocalTarget is the only conversation the console hosts.
	LocalTarget = "local"
	// LocalSender is the id inbound lines are attributed to.
	LocalSender = "operator"
)

// Options selects the terminal streams and mode.
type Options struct {
	In  io.Reader
	Out io.Writer
	// Interactive runs the full screen UI instead of plain line mode.
	Interactive bool
}

// Adapter reads operator lines from a terminal and prints bot output.
type Adapter struct {
	in          io.Reader
	out         io.Writer
	interactive bool
	deps        channel.Deps
	log         *slog.Logger
	theme       theme

	ids atomic.Int64

	done     chan struct{}
	doneOnce sync.Once

	mu   sync.Mutex
	sink func(entry)
}

// NewAdapter constructs a console adapter. Nil streams are rejected.
func NewAdapter(opts Options, deps channel.Deps, log *slog.Logger) (*Adapter, error) {
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("console input and output are required")
	}

	if log == nil {
		log = slog.Default()
	}

	a := &Adapter{
		in:          opts.In,
		out:         opts.Out,
		interactive: opts.Interactive,
		deps:        deps,
		log:         log.With("component", "channel.console"),
		theme:       newTheme(lipgloss.NewRenderer(opts.Out)),
		done:        make(chan struct{}),
	}
	a.sink = a.print

	return a, nil
}

func (a *Adapter) Name() string {
	return channelName
}

func (a *Adapter) Platform() string {
	return channelName
}

// Open returns a poster printing to the terminal. The console is always connected.
func (a *Adapter) Open(context.Context, session.Target) (session.Poster, error) {
	return a.newPoster(), nil
}

// Run reads lines until EOF, an exit command or ctx cancellation.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	defer a.doneOnce.Do(func() { close(a.done) })

	if a.interactive {
		return a.runInteractive(ctx, handler)
	}

	return a.runLines(ctx, handler)
}

// Done is closed once Run has returned.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

func (a *Adapter) runLines(ctx context.Context, handler channel.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read console input: %w", err)
					}
				default:
				}
				return nil
			}

			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if isExitCommand(text) {
				return nil
			}

			if err := a.receive(ctx, text, handler); err != nil {
				a.emit(entry{role: roleError, content: err.Error()})
			}
		}
	}
}

func (a *Adapter) receive(ctx context.Context, text string, handler channel.Handler) error {
	target := session.Target{
		TargetFrom: channelName,
		TargetID:   LocalTarget,
		SenderFrom: channelName,
		SenderID:   LocalSender,
	}
	a.log.Debug("Received line", "content", channel.Preview(text))

	in := channel.Inbound{
		Target: target,
		Event:  message.InboundEvent{Body: text},
		Poster: a.newPoster(),
	}

	return channel.Receive(ctx, a.deps, in, handler, a.log)
}

func (a *Adapter) newPoster() *poster {
	return &poster{adapter: a, live: make(map[string]struct{})}
}

func (a *Adapter) nextID() string {
	return fmt.Sprintf("c%d", a.ids.Add(1))
}

func (a *Adapter) emit(e entry) {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()

	sink(e)
}

func (a *Adapter) setSink(sink func(entry)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sink = sink
}

func (a *Adapter) print(e entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintln(a.out, a.theme.render(e, 0))
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
