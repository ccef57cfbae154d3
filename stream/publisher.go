package stream

import (
	"context"
	"sync"
	"time"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/logging"
)

// Options configures a Publisher.
type Options struct {
	// BufferSize bounds the queue between producers and the delivery loop.
	BufferSize int
	// KeepaliveInterval is the idle threshold after which a keepalive frame
	// is delivered so the transport does not appear stalled.
	KeepaliveInterval time.Duration
	// Logger for delivery diagnostics.
	Logger logging.Logger
}

// Publisher delivers StreamEvents for one request in strict production
// order. Guarantees:
//
//   - the start frame is first and the complete/error frame is last
//   - every delivered frame carries a strictly increasing Seq
//   - publishing after the terminal frame returns core.ErrStreamClosed
//   - if the consumer's context is cancelled, remaining frames are dropped
//     but producers never block, so processing can run to completion
//
// Producers and the delivery loop are decoupled by a bounded queue; the
// delivery loop emits keepalive frames when the queue stays idle.
type Publisher struct {
	queue chan core.StreamEvent
	out   chan core.StreamEvent

	mu     sync.Mutex
	seq    int64
	closed bool

	consumerCtx context.Context
	keepalive   time.Duration
	logger      logging.Logger
}

// NewPublisher constructs a publisher bound to the consumer's context and
// starts its delivery loop. Cancelling ctx stops delivery without stopping
// producers.
func NewPublisher(ctx context.Context, optFns ...func(o *Options)) *Publisher {
	opts := Options{
		BufferSize:        64,
		KeepaliveInterval: 10 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	p := &Publisher{
		queue:       make(chan core.StreamEvent, opts.BufferSize),
		out:         make(chan core.StreamEvent, opts.BufferSize),
		consumerCtx: ctx,
		keepalive:   opts.KeepaliveInterval,
		logger:      opts.Logger,
	}
	go p.deliver()
	return p
}

// Events returns the delivery channel. It is closed after the terminal frame
// (or once the queue drains following consumer cancellation).
func (p *Publisher) Events() <-chan core.StreamEvent { return p.out }

// Start delivers the opening frame. Must be called exactly once, before any
// other publish.
func (p *Publisher) Start(conversationID string) {
	ev := core.StreamEvent{Type: core.EventStart, Payload: map[string]any{"conversation_id": conversationID}}
	_ = p.Publish(ev)
}

// Publish enqueues ev for ordered delivery, stamping Seq and Timestamp.
// After the terminal frame it returns core.ErrStreamClosed. When the
// consumer has disconnected the event is dropped without error so the
// producing pipeline keeps running.
func (p *Publisher) Publish(ev core.StreamEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return core.ErrStreamClosed
	}
	terminal := ev.Type == core.EventComplete || ev.Type == core.EventError
	if terminal {
		p.closed = true
	}
	p.seq++
	ev.Seq = p.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	// Enqueue while holding the lock so Seq order and queue order agree.
	select {
	case p.queue <- ev:
	case <-p.consumerCtx.Done():
		p.logger.Debug("stream.publish.dropped", "type", string(ev.Type), "seq", ev.Seq)
	}
	if terminal {
		close(p.queue)
	}
	return nil
}

// Complete delivers the terminal success frame carrying the full result.
func (p *Publisher) Complete(result *core.Result) {
	_ = p.Publish(core.StreamEvent{
		Type:    core.EventComplete,
		Agent:   result.AgentUsed,
		Content: result.Response,
		Payload: map[string]any{"result": result},
	})
}

// Fail delivers the terminal error frame. Raw error detail stays internal;
// msg should already be user-safe.
func (p *Publisher) Fail(msg string) {
	_ = p.Publish(core.StreamEvent{Type: core.EventError, Content: msg})
}

// deliver pumps the queue to the out channel, injecting keepalive frames on
// idle and discarding frames once the consumer disconnects.
func (p *Publisher) deliver() {
	defer close(p.out)
	dropping := false
	for {
		select {
		case ev, ok := <-p.queue:
			if !ok {
				return
			}
			if dropping {
				continue
			}
			select {
			case p.out <- ev:
			case <-p.consumerCtx.Done():
				p.logger.Debug("stream.consumer.gone", "seq", ev.Seq)
				dropping = true
			}
		case <-time.After(p.keepalive):
			if dropping {
				continue
			}
			// A frame may have raced the idle timer; deliver it instead of a
			// keepalive so Seq order is preserved.
			select {
			case ev, ok := <-p.queue:
				if !ok {
					return
				}
				select {
				case p.out <- ev:
				case <-p.consumerCtx.Done():
					dropping = true
				}
				continue
			default:
			}
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				continue
			}
			p.seq++
			ka := core.StreamEvent{Seq: p.seq, Type: core.EventKeepalive, Timestamp: time.Now().UTC()}
			p.mu.Unlock()
			select {
			case p.out <- ka:
			case <-p.consumerCtx.Done():
				dropping = true
			}
		case <-p.consumerCtx.Done():
			dropping = true
			// Keep draining so producers never block on a full queue.
			for ev := range p.queue {
				_ = ev
			}
			return
		}
	}
}
