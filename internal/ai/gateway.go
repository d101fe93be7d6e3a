package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxHistory   = 10
	DefaultTimeout      = 60 * time.Second
	DefaultPromptPrefix = "Answer in plain text (paragraphs): "
)

var (
	ErrTimeout              = errors.New("ai: model call timed out")
	ErrStreamingUnsupported = errors.New("ai: provider does not support streaming")
)

// GatewayError is any provider failure other than a timeout.
type GatewayError struct {
	Provider string
	Err      error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("ai %s: %v", e.Provider, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

// Observer receives one call per model request. outcome is "ok", "error" or "timeout".
type Observer interface {
	ObserveGateway(provider, outcome string, d time.Duration)
}

// Gateway is the single entry point the rest of the app uses to talk to a model.
// It is built once at start-up and shared; it holds no per-conversation state.
//
// Contract: history holds the turns that precede prompt (oldest first, at most
// maxHistory are forwarded). prompt is appended as the final user turn and must
// not also be the last history entry.
type Gateway struct {
	name         string
	provider     Provider
	timeout      time.Duration
	promptPrefix string
	maxHistory   int
	observer     Observer
}

type GatewayOption func(*Gateway)

func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithPromptPrefix(prefix string) GatewayOption {
	return func(g *Gateway) { g.promptPrefix = prefix }
}

func WithMaxHistory(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 && n <= DefaultMaxHistory {
			g.maxHistory = n
		}
	}
}

func WithObserver(o Observer) GatewayOption {
	return func(g *Gateway) { g.observer = o }
}

func NewGateway(name string, p Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		name:         name,
		provider:     p,
		timeout:      DefaultTimeout,
		promptPrefix: DefaultPromptPrefix,
		maxHistory:   DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Name() string { return g.name }

func (g *Gateway) messages(history []Message, prompt string) []Message {
	if len(history) > g.maxHistory {
		history = history[len(history)-g.maxHistory:]
	}
	out := make([]Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, Message{Role: RoleUser, Content: g.promptPrefix + prompt})
}

// Reply returns the model's answer to prompt. Errors are ErrTimeout or *GatewayError.
func (g *Gateway) Reply(ctx context.Context, history []Message, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	reply, err := g.provider.Chat(ctx, g.messages(history, prompt))
	if err != nil {
		err = g.classify(ctx, err)
	}
	g.observe(err, time.Since(start))
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Stream is Reply for providers implementing StreamProvider. chunks and errs
// close together; errs carries at most one classified error.
func (g *Gateway) Stream(ctx context.Context, history []Message, prompt string) (<-chan string, <-chan error, error) {
	sp, ok := g.provider.(StreamProvider)
	if !ok {
		return nil, nil, ErrStreamingUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	start := time.Now()
	in, inErrs := sp.StreamChat(ctx, g.messages(history, prompt))

	out := make(chan string, 16)
	errs := make(chan error, 1)
	go func() {
		defer cancel()
		defer close(errs)
		defer close(out)

		for c := range in {
			out <- c
		}
		var err error
		if e := <-inErrs; e != nil {
			err = g.classify(ctx, e)
			errs <- err
		}
		g.observe(err, time.Since(start))
	}()
	return out, errs, nil
}

func (g *Gateway) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
	}
	return &GatewayError{Provider: g.name, Err: err}
}

func (g *Gateway) observe(err error, d time.Duration) {
	if g.observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	g.observer.ObserveGateway(g.name, outcome, d)
}
