// Package channel implements the duplex typed message link between the host
// process and the client core. Outbound messages queue until the delivery
// primitive accepts them, with a single retry timer for the whole queue.
// Inbound messages fan out to every handler registered for their type; a
// panicking handler is isolated from its siblings.
package channel

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OrionStarAI/DeepVCode-sub000/internal/protocol"
)

// DeliverFunc pushes one envelope toward the peer. It returns an error while
// the underlying delivery primitive is not yet available; the channel queues
// and retries in that case.
type DeliverFunc func(protocol.Envelope) error

// ErrDisposed is returned by Send after Dispose.
var ErrDisposed = errors.New("channel: disposed")

// DefaultRetryInterval is how long the channel waits before retrying a
// queued flush.
const DefaultRetryInterval = 250 * time.Millisecond

// bypassReady lists message types allowed to skip the pre-ready queue: the
// peer may need these before the handshake completes.
var bypassReady = map[string]bool{
	protocol.MsgReady:             true,
	protocol.MsgAuthStatusRequest: true,
}

type handlerEntry struct {
	id int
	fn func(protocol.Envelope)
}

// Channel is the transport link. Construct with New; the channel immediately
// announces readiness and requests the current session list.
type Channel struct {
	mu       sync.Mutex
	deliver  DeliverFunc
	queue    []protocol.Envelope
	handlers map[string][]handlerEntry
	nextID   int
	retry    *time.Timer
	interval time.Duration
	disposed bool
	logger   *zap.Logger
}

// Option adjusts channel construction.
type Option func(*Channel)

// WithRetryInterval overrides the queue retry cadence.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.interval = d
		}
	}
}

// New builds a channel over the given delivery primitive and performs the
// readiness handshake: a ready signal goes out first, then a request for the
// host's current session list.
func New(deliver DeliverFunc, logger *zap.Logger, opts ...Option) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Channel{
		deliver:  deliver,
		handlers: make(map[string][]handlerEntry),
		interval: DefaultRetryInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Send(protocol.Envelope{Type: protocol.MsgReady})
	c.Send(protocol.Envelope{Type: protocol.MsgSessionListRequest})
	return c
}

// Send delivers an envelope to the peer, queueing it if delivery is not yet
// possible. Queued messages flush in original order. Allow-listed handshake
// types skip the queue and are attempted immediately.
func (c *Channel) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}

	if bypassReady[env.Type] {
		if err := c.deliver(env); err != nil {
			c.logger.Debug("handshake message not delivered",
				zap.String("type", env.Type), zap.Error(err))
		}
		return nil
	}

	if len(c.queue) > 0 {
		c.queue = append(c.queue, env)
		c.armRetryLocked()
		return nil
	}
	if err := c.deliver(env); err != nil {
		c.queue = append(c.queue, env)
		c.armRetryLocked()
	}
	return nil
}

// armRetryLocked starts the single retry timer if it is not already pending.
func (c *Channel) armRetryLocked() {
	if c.retry != nil {
		return
	}
	c.retry = time.AfterFunc(c.interval, c.flush)
}

// flush retries the queued messages in order, stopping at the first failure.
func (c *Channel) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retry = nil
	if c.disposed {
		return
	}
	for len(c.queue) > 0 {
		if err := c.deliver(c.queue[0]); err != nil {
			c.armRetryLocked()
			return
		}
		c.queue = c.queue[1:]
	}
}

// Subscribe registers a handler for one message type and returns a disposer
// that removes only that handler. Multiple handlers per type fan out.
func (c *Channel) Subscribe(msgType string, fn func(protocol.Envelope)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return func() {}
	}
	c.nextID++
	id := c.nextID
	c.handlers[msgType] = append(c.handlers[msgType], handlerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[msgType]
		for i, e := range entries {
			if e.id == id {
				c.handlers[msgType] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// HandleRaw validates and dispatches one raw inbound message. Malformed
// envelopes, unregistered types, and payloads that do not fit their type's
// schema are logged and dropped at the boundary; handlers only ever see
// messages that decoded cleanly.
func (c *Channel) HandleRaw(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("dropping malformed inbound message", zap.Error(err))
		return
	}
	if _, err := protocol.DecodePayload(env); err != nil {
		c.logger.Warn("dropping unrecognized inbound message",
			zap.String("type", env.Type), zap.Error(err))
		return
	}
	c.Dispatch(env)
}

// Dispatch fans a decoded envelope out to its handlers.
func (c *Channel) Dispatch(env protocol.Envelope) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	entries := make([]handlerEntry, len(c.handlers[env.Type]))
	copy(entries, c.handlers[env.Type])
	c.mu.Unlock()

	for _, e := range entries {
		c.invoke(env, e)
	}
}

func (c *Channel) invoke(env protocol.Envelope, e handlerEntry) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panicked",
				zap.String("type", env.Type), zap.Any("panic", r))
		}
	}()
	e.fn(env)
}

// Pending reports how many outbound messages are waiting on the retry timer.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Dispose releases all handlers, drops the pending queue, and cancels the
// retry timer. Safe to call more than once.
func (c *Channel) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	c.handlers = make(map[string][]handlerEntry)
	c.queue = nil
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}
