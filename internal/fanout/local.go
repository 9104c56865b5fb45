package fanout

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrBusClosed is returned when publishing to a closed Bus.
var ErrBusClosed = errors.New("fanout bus closed")

const defaultBusBuffer = 256

// Bus is an in-process fan-out of envelopes. Several Local bridges sharing one
// Bus behave like instances sharing one broker.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Envelope
	nextID      uint64
	buffer      int
	closed      bool
}

// NewBus creates a bus whose subscribers buffer up to buffer envelopes.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}
	return &Bus{
		subscribers: make(map[uint64]chan Envelope),
		buffer:      buffer,
	}
}

func (b *Bus) subscribe() (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}
	return ch, unsub
}

// publish is non-blocking: a subscriber with a full buffer misses the envelope.
func (b *Bus) publish(env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- env:
		default:
		}
	}
	return nil
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Local is a Bridge over a Bus.
type Local struct {
	bus *Bus

	mu     sync.Mutex
	unsubs []func()
}

// NewLocal returns a bridge on bus, or on a private bus when bus is nil.
func NewLocal(bus *Bus) *Local {
	if bus == nil {
		bus = NewBus(0)
	}
	return &Local{bus: bus}
}

// Publish implements Bridge.
func (l *Local) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.bus.publish(env)
}

// Subscribe implements Bridge.
func (l *Local) Subscribe(ctx context.Context, handler Handler) (io.Closer, error) {
	ch, unsub := l.bus.subscribe()

	l.mu.Lock()
	l.unsubs = append(l.unsubs, unsub)
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				unsub()
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				handler(env)
			}
		}
	}()

	return closerFunc(func() error {
		unsub()
		return nil
	}), nil
}

// Close drops the subscriptions made through this bridge. The bus stays open.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, unsub := range l.unsubs {
		unsub()
	}
	l.unsubs = nil
	return nil
}
