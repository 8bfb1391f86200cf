package shake

import (
	"context"
	"sync"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
)

// Dispatcher delivers shake events to whoever is interested.
type Dispatcher interface {
	Dispatch(event motion.Event)
}

// Observer is notified about every dispatched shake event.
type Observer interface {
	OnShake(event motion.Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(event motion.Event)

// OnShake implements Observer.
func (f ObserverFunc) OnShake(event motion.Event) {
	f(event)
}

// subscription is one registered observer.
type subscription struct {
	id       uint64
	observer Observer
}

// Bus fans every dispatched event out to all subscribed observers in
// subscription order. Observers may subscribe or unsubscribe from within OnShake.
type Bus struct {
	mu            sync.RWMutex
	nextID        uint64
	subscriptions []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return new(Bus)
}

// Subscribe registers o and returns a function that removes it again.
func (b *Bus) Subscribe(o Observer) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscriptions = append(b.subscriptions, subscription{id: id, observer: o})
	b.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Len returns the number of subscribed observers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscriptions)
}

// Dispatch implements Dispatcher. Every observer subscribed when Dispatch
// starts receives event exactly once.
func (b *Bus) Dispatch(event motion.Event) {
	b.mu.RLock()
	snapshot := make([]Observer, len(b.subscriptions))

	for i, s := range b.subscriptions {
		snapshot[i] = s.observer
	}
	b.mu.RUnlock()

	for _, o := range snapshot {
		o.OnShake(event)
	}
}

// Listen returns a channel receiving every event dispatched until ctx is done.
// Events are dropped when the buffer is full; the channel is closed after ctx ends.
func (b *Bus) Listen(ctx context.Context, buffer int) <-chan motion.Event {
	l := &channelListener{
		ctx: ctx,
		ch:  make(chan motion.Event, buffer),
	}

	unsubscribe := b.Subscribe(l)

	go func() {
		<-ctx.Done()
		unsubscribe()
		l.close()
	}()

	return l.ch
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscriptions {
		if s.id != id {
			continue
		}

		b.subscriptions = append(b.subscriptions[:i:i], b.subscriptions[i+1:]...)

		return
	}
}

// channelListener forwards events into a buffered channel without blocking the bus.
type channelListener struct {
	ctx    context.Context //nolint:containedctx // Only used for logging dropped events.
	mu     sync.Mutex
	ch     chan motion.Event
	closed bool
}

// OnShake implements Observer.
func (l *channelListener) OnShake(event motion.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	select {
	case l.ch <- event:
	default:
		logger.WarnKV(l.ctx, "Listener buffer full, dropping shake event", "event_id", event.ID, "seq", event.Seq)
	}
}

func (l *channelListener) close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.closed = true
	close(l.ch)
}
