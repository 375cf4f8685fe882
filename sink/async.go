package sink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the queue capacity used by [NewAsync] when none is
// given.
const DefaultQueueSize = 4096

// ErrClosed is returned by [Async.Flush] after [Async.Close].
var ErrClosed = errors.New("sink closed")

type kind uint8

const (
	kindSpan kind = iota + 1
	kindBegin
	kindMessage
	kindFlush
)

type item struct {
	span  SpanEvent
	msg   MessageEvent
	flush chan struct{}
	kind  kind
}

// Async decouples producers from a slow or unavailable sink with a bounded
// queue. When the queue is full the event is dropped; producers never block.
type Async struct {
	next    Sink
	queue   chan item
	done    chan struct{}
	onError func(error)
	metrics *Metrics
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// AsyncOption configures an [Async] sink.
type AsyncOption func(*Async)

// WithErrorHandler sets a function called (from the worker goroutine) when the
// wrapped sink panics.
func WithErrorHandler(fn func(error)) AsyncOption {
	return func(a *Async) { a.onError = fn }
}

// WithMetrics counts dropped and failed events in m.
func WithMetrics(m *Metrics) AsyncOption {
	return func(a *Async) { a.metrics = m }
}

// NewAsync starts a worker goroutine forwarding to next. Call [Async.Close] to
// stop it.
func NewAsync(next Sink, size int, opts ...AsyncOption) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}

	a := &Async{
		next:  next,
		queue: make(chan item, size),
		done:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.wg.Add(1)

	go a.run()

	return a
}

// EmitSpan implements [Sink].
func (a *Async) EmitSpan(ev *SpanEvent) {
	a.push(item{kind: kindSpan, span: *ev})
}

// EmitBegin implements [BeginEmitter]. It is forwarded only if the wrapped
// sink implements [BeginEmitter].
func (a *Async) EmitBegin(ev *SpanEvent) {
	if _, ok := a.next.(BeginEmitter); !ok {
		return
	}

	a.push(item{kind: kindBegin, span: *ev})
}

// EmitMessage implements [Sink].
func (a *Async) EmitMessage(ev *MessageEvent) {
	a.push(item{kind: kindMessage, msg: *ev})
}

// Dropped returns the number of events discarded because the queue was full
// or the sink was closed.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Failed returns the number of events the wrapped sink panicked on.
func (a *Async) Failed() uint64 { return a.failed.Load() }

func (a *Async) push(it item) {
	select {
	case <-a.done:
		a.drop()

		return
	default:
	}

	select {
	case a.queue <- it:
	default:
		a.drop()
	}
}

func (a *Async) drop() {
	a.dropped.Add(1)

	if a.metrics != nil {
		a.metrics.dropped.Inc()
	}
}

// Flush waits until every event queued before the call has been forwarded,
// then flushes the wrapped sink if it implements [Flusher].
func (a *Async) Flush() error {
	ack := make(chan struct{})

	select {
	case <-a.done:
		return ErrClosed
	case a.queue <- item{kind: kindFlush, flush: ack}:
	}

	select {
	case <-ack:
	case <-a.done:
		return ErrClosed
	}

	if f, ok := a.next.(Flusher); ok {
		return f.Flush()
	}

	return nil
}

// Close drains the queue, stops the worker and flushes the wrapped sink.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.done) })
	a.wg.Wait()

	if f, ok := a.next.(Flusher); ok {
		return f.Flush()
	}

	return nil
}

func (a *Async) run() {
	defer a.wg.Done()

	for {
		select {
		case it := <-a.queue:
			a.forward(it)
		case <-a.done:
			for {
				select {
				case it := <-a.queue:
					a.forward(it)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) forward(it item) {
	defer func() {
		if r := recover(); r != nil {
			a.failed.Add(1)

			if a.metrics != nil {
				a.metrics.failed.Inc()
			}

			if a.onError != nil {
				a.onError(fmt.Errorf("sink panic: %v", r))
			}
		}
	}()

	switch it.kind {
	case kindSpan:
		a.next.EmitSpan(&it.span)
	case kindBegin:
		if b, ok := a.next.(BeginEmitter); ok {
			b.EmitBegin(&it.span)
		}
	case kindMessage:
		a.next.EmitMessage(&it.msg)
	case kindFlush:
		close(it.flush)
	}
}
