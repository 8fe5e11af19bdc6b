package events

import (
	"sync"

	"github.com/liveeadmin/shai/errors"
)

const (
	// DefaultSubscriberBuffer is the per-subscriber channel capacity. A
	// subscriber that falls this far behind is dropped, not the conversation.
	DefaultSubscriberBuffer = 64
	// DefaultReplayWindow is how many trailing events the bus retains for
	// reconnecting subscribers.
	DefaultReplayWindow = 256
)

// TypeSubscriberDropped is a bus-level marker delivered to a subscriber that
// overflowed its buffer, just before its channel is closed. It is never part
// of the conversation's event log and carries no sequence number.
const TypeSubscriberDropped Type = "subscriber-dropped"

// Bus is the per-conversation streaming event bus. Publish is safe to call
// from concurrent producers; each subscriber receives events in publish order
// on its own channel, so consumers never need locking of their own.
type Bus struct {
	mu        sync.Mutex
	seq       uint64
	window    []Event
	windowCap int
	subBuf    int
	subs      map[int]chan Event
	nextSub   int
	closed    bool
}

// NewBus creates a bus with default buffer sizes.
func NewBus() *Bus {
	return NewSizedBus(DefaultSubscriberBuffer, DefaultReplayWindow)
}

// NewSizedBus creates a bus with explicit per-subscriber buffer and replay
// window sizes. Mostly useful in tests.
func NewSizedBus(subscriberBuffer, replayWindow int) *Bus {
	if subscriberBuffer < 1 {
		subscriberBuffer = 1
	}
	if replayWindow < 1 {
		replayWindow = 1
	}
	return &Bus{
		windowCap: replayWindow,
		subBuf:    subscriberBuffer,
		subs:      make(map[int]chan Event),
	}
}

// Publish assigns the next sequence number to evt and fans it out. After a
// terminal event the bus rejects further publishes and releases all
// subscribers.
func (b *Bus) Publish(evt Event) (Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Event{}, errors.New("event bus is closed")
	}

	b.seq++
	evt.Seq = b.seq

	b.window = append(b.window, evt)
	if len(b.window) > b.windowCap {
		b.window = b.window[len(b.window)-b.windowCap:]
	}

	for id, ch := range b.subs {
		if len(ch) >= cap(ch)-1 {
			// Slow subscriber: detach it rather than stalling the producer.
			delete(b.subs, id)
			b.dropLocked(ch)
			continue
		}
		ch <- evt
	}

	if evt.Terminal() {
		b.closed = true
		for id, ch := range b.subs {
			delete(b.subs, id)
			close(ch)
		}
	}
	return evt, nil
}

// dropLocked delivers the disconnect marker and closes the channel. The last
// buffer slot is reserved for the marker, so the send cannot block. Called
// with b.mu held.
func (b *Bus) dropLocked(ch chan Event) {
	ch <- Event{Type: TypeSubscriberDropped}
	close(ch)
}

// Subscription is a live attachment to the bus. Receive from C; call Cancel
// when done. C is closed when the conversation ends, when the subscriber is
// dropped for falling behind, or on Cancel.
type Subscription struct {
	C    <-chan Event
	bus  *Bus
	id   int
	once sync.Once
}

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once and after the bus has closed.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if ch, ok := s.bus.subs[s.id]; ok {
			delete(s.bus.subs, s.id)
			close(ch)
		}
	})
}

// Subscribe attaches from the current position forward. Events published
// before the attach point are not replayed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribeLocked(nil)
}

// SubscribeAfter attaches and replays the retained events with sequence
// numbers greater than after. It fails when the requested position has
// already slid out of the replay window, so the caller can detect the gap
// instead of silently missing events.
func (b *Bus) SubscribeAfter(after uint64) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var replay []Event
	if after < b.seq {
		oldest := b.seq - uint64(len(b.window)) + 1
		if len(b.window) == 0 || after+1 < oldest {
			return nil, errors.New("events after seq %d are no longer retained", after)
		}
		for _, evt := range b.window {
			if evt.Seq > after {
				replay = append(replay, evt)
			}
		}
	}
	return b.subscribeLocked(replay), nil
}

// subscribeLocked registers a subscriber, pre-loading replay into its buffer.
// One slot beyond the buffer size is reserved for the disconnect marker.
// Called with b.mu held.
func (b *Bus) subscribeLocked(replay []Event) *Subscription {
	buf := b.subBuf
	if len(replay) > buf {
		buf = len(replay)
	}
	ch := make(chan Event, buf+1)
	for _, evt := range replay {
		ch <- evt
	}

	sub := &Subscription{C: ch, bus: b}
	if b.closed {
		// Late subscriber on an ended conversation: it gets the replay (if
		// any) and an immediately closed channel.
		close(ch)
		sub.once.Do(func() {})
		return sub
	}

	b.nextSub++
	sub.id = b.nextSub
	b.subs[sub.id] = ch
	return sub
}

// Seq returns the sequence number of the most recently published event.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Closed reports whether the terminal event has been published.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
