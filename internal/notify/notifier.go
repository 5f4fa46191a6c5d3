// Package notify delivers human-readable status lines to the operator.
//
// Notify is fire-and-forget: implementations never block trading logic and
// never report delivery failures to the caller.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Notifier is the outbound port injected into components that report status.
type Notifier interface {
	Notify(text string)
}

// Sender is a blocking delivery channel with an error result.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(string) {}

// Multi fans a message out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(text string) {
	for _, n := range m {
		if n != nil {
			n.Notify(text)
		}
	}
}

// Log writes messages to the structured logger.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Notify(text string) {
	l.Logger.Info().Str("component", "notify").Msg(text)
}

// Async queues messages for a single background Sender so callers never wait
// on the network. Messages are delivered in order; when the queue is full the
// message is dropped with a warning.
type Async struct {
	sender  Sender
	queue   chan string
	timeout time.Duration
	done    chan struct{}
}

// NewAsync starts the delivery worker; it stops when ctx is cancelled.
func NewAsync(ctx context.Context, sender Sender, buffer int, timeout time.Duration) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	a := &Async{
		sender:  sender,
		queue:   make(chan string, buffer),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

func (a *Async) Notify(text string) {
	select {
	case a.queue <- text:
	default:
		log.Warn().Str("component", "notify").Str("text", text).Msg("notification queue full, dropping message")
	}
}

// Done is closed once the worker has exited.
func (a *Async) Done() <-chan struct{} { return a.done }

func (a *Async) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.queue:
			sendCtx, cancel := context.WithTimeout(ctx, a.timeout)
			if err := a.sender.Send(sendCtx, text); err != nil {
				log.Warn().Err(err).Str("component", "notify").Msg("notification delivery failed")
			}
			cancel()
		}
	}
}
