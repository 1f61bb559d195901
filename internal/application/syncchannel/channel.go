// Package syncchannel implements the single-slot channel that carries the
// current VisibleSet from the map engine to a list-panel listener registered
// elsewhere.  Publish-before-register and register-before-publish converge:
// whenever both a listener and a value exist, the listener has seen the value
// at least once since it registered.
package syncchannel

import (
	"fmt"
	"sync"
	"time"

	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/clock"
)

// Default timings.
const (
	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultKeepAliveInterval = 2 * time.Second
)

// Trigger names the cause of a delivery.
type Trigger string

const (
	TriggerPublish   Trigger = "publish"
	TriggerRegister  Trigger = "register"
	TriggerRetry     Trigger = "retry"
	TriggerKeepAlive Trigger = "keepalive"
)

// Listener receives the current value.  Every invocation carries the latest
// value and must be handled idempotently.  A listener must not call back into
// the Channel synchronously.
type Listener[T any] func(T)

// DeliveryObserver is notified after every delivery attempt that reached a
// listener.  ok is false when the listener panicked.
type DeliveryObserver func(trigger Trigger, ok bool)

// Option configures a Channel.
type Option func(*options)

type options struct {
	clock     clock.Clock
	logger    logging.Logger
	retry     time.Duration
	keepAlive time.Duration
	observer  DeliveryObserver
}

// WithClock sets the time source for retry and keep-alive timers.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = clock.OrReal(c) } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retry = d
		}
	}
}

// WithKeepAliveInterval overrides DefaultKeepAliveInterval.  Zero disables
// keep-alive.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.keepAlive = d
		}
	}
}

// WithDeliveryObserver installs a hook used for metrics.
func WithDeliveryObserver(fn DeliveryObserver) Option {
	return func(o *options) { o.observer = fn }
}

// Channel is a producer/consumer slot holding at most one listener and the
// last published value.  It is safe for concurrent use.
type Channel[T any] struct {
	// deliverMu serializes listener invocations so a listener never observes
	// an older value after a newer one.
	deliverMu sync.Mutex

	mu           sync.Mutex
	listener     Listener[T]
	generation   uint64
	value        T
	hasValue     bool
	lastDelivery time.Time
	retryTimer   clock.Timer
	keepAlive    clock.Timer
	closed       bool

	opts options
}

// New constructs an empty Channel.
func New[T any](opts ...Option) *Channel[T] {
	o := options{
		clock:     clock.Real(),
		logger:    logging.NewNopLogger(),
		retry:     DefaultRetryDelay,
		keepAlive: DefaultKeepAliveInterval,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Channel[T]{opts: o}
}

// Register installs l as the sole listener; the last registration wins.  If
// a value has already been published, l is invoked with it before Register
// returns.  The returned function unregisters l unless it was already
// replaced.
func (c *Channel[T]) Register(l Listener[T]) (unregister func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	c.generation++
	gen := c.generation
	c.listener = l
	has := c.hasValue
	c.mu.Unlock()

	if l != nil && has && c.deliver(TriggerRegister) {
		c.mu.Lock()
		c.stopRetryLocked()
		c.mu.Unlock()
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation == gen {
			c.listener = nil
		}
	}
}

// Publish stores v as the current value and delivers it to the listener.
// With no listener registered, exactly one retry is scheduled; repeated
// publishes before it fires share it.
func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.opts.logger.Debug("publish on closed sync channel ignored")
		return
	}
	c.value = v
	c.hasValue = true
	hasListener := c.listener != nil
	if !hasListener {
		c.scheduleRetryLocked()
	}
	c.ensureKeepAliveLocked()
	c.mu.Unlock()

	if hasListener {
		c.deliver(TriggerPublish)
	}
}

// Last returns the most recently published value.
func (c *Channel[T]) Last() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.hasValue
}

// HasListener reports whether a listener is registered.
func (c *Channel[T]) HasListener() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener != nil
}

// LastDelivery returns the time of the last successful delivery, or the zero
// time.
func (c *Channel[T]) LastDelivery() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDelivery
}

// Close stops the retry and keep-alive timers.  Later Publish and Register
// calls are ignored.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopRetryLocked()
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
	c.listener = nil
}

func (c *Channel[T]) deliver(trigger Trigger) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	l, v, has := c.listener, c.value, c.hasValue
	c.mu.Unlock()
	if l == nil || !has {
		return false
	}

	ok := c.invoke(l, v, trigger)
	if ok {
		c.mu.Lock()
		c.lastDelivery = c.opts.clock.Now()
		c.mu.Unlock()
	}
	if c.opts.observer != nil {
		c.opts.observer(trigger, ok)
	}
	return ok
}

func (c *Channel[T]) invoke(l Listener[T], v T, trigger Trigger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			c.opts.logger.Error("sync listener panicked",
				logging.String("trigger", string(trigger)),
				logging.String("panic", fmt.Sprint(r)))
		}
	}()
	l(v)
	return true
}

func (c *Channel[T]) scheduleRetryLocked() {
	if c.retryTimer != nil {
		return
	}
	c.retryTimer = c.opts.clock.AfterFunc(c.opts.retry, c.onRetry)
}

func (c *Channel[T]) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Channel[T]) onRetry() {
	c.mu.Lock()
	c.retryTimer = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if !c.deliver(TriggerRetry) {
		c.opts.logger.Debug("sync retry found no listener")
	}
}

func (c *Channel[T]) ensureKeepAliveLocked() {
	if c.keepAlive != nil || c.opts.keepAlive <= 0 {
		return
	}
	c.keepAlive = c.opts.clock.AfterFunc(c.opts.keepAlive, c.onKeepAlive)
}

func (c *Channel[T]) onKeepAlive() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	due := c.listener != nil && c.hasValue &&
		c.opts.clock.Now().Sub(c.lastDelivery) > c.opts.keepAlive
	c.keepAlive = c.opts.clock.AfterFunc(c.opts.keepAlive, c.onKeepAlive)
	c.mu.Unlock()

	if due {
		c.deliver(TriggerKeepAlive)
	}
}

//Personal.AI order the ending
