package rtmp

import (
	"fmt"
	"sync"
)

// StreamEventType is the kind of change a StreamEvent reports.
type StreamEventType uint8

const (
	StreamPublished StreamEventType = iota + 1
	StreamUnpublished
	// StreamClosed is sent when a session goes away while still publishing.
	StreamClosed
)

func (t StreamEventType) String() string {
	switch t {
	case StreamPublished:
		return "publish"
	case StreamUnpublished:
		return "unpublish"
	case StreamClosed:
		return "close"
	default:
		return fmt.Sprintf("StreamEventType(%d)", uint8(t))
	}
}

func (t StreamEventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type StreamEvent struct {
	Type   StreamEventType `json:"type"`
	Stream Publisher       `json:"stream"`
}

// subscriberBuffer is how many events a subscriber may fall behind before events are dropped for it.
const subscriberBuffer = 64

// Broadcaster tracks the streams published on the server and tells subscribers about
// publishes and unpublishes. It is safe for concurrent use.
type Broadcaster struct {
	context ContextStore

	mu          sync.Mutex
	subscribers map[int]chan StreamEvent
	nextID      int
}

func NewBroadcaster(context ContextStore) *Broadcaster {
	if context == nil {
		context = NewInMemoryContext()
	}
	return &Broadcaster{
		context:     context,
		subscribers: make(map[int]chan StreamEvent),
	}
}

// Publish registers p. It fails with ErrStreamAlreadyPublished when another session
// publishes the same app and name.
func (b *Broadcaster) Publish(p Publisher) error {
	if err := b.context.RegisterPublisher(p); err != nil {
		return err
	}
	b.broadcast(StreamEvent{Type: StreamPublished, Stream: p})
	return nil
}

func (b *Broadcaster) Unpublish(sessionID string, streamID uint32) error {
	p, err := b.context.DestroyPublisher(sessionID, streamID)
	if err != nil {
		return err
	}
	b.broadcast(StreamEvent{Type: StreamUnpublished, Stream: p})
	return nil
}

// Close drops every stream still published by sessionID.
func (b *Broadcaster) Close(sessionID string) {
	for _, p := range b.context.DestroySession(sessionID) {
		b.broadcast(StreamEvent{Type: StreamClosed, Stream: p})
	}
}

// Record adds one message of size bytes to the counters of a stream.
func (b *Broadcaster) Record(sessionID string, streamID uint32, kind DataKind, size int) error {
	return b.context.Record(sessionID, streamID, kind, size)
}

func (b *Broadcaster) Streams() []Publisher {
	return b.context.Publishers()
}

// Subscribe returns a channel of stream events and a function that ends the subscription
// and closes the channel. Events are dropped for subscribers that do not keep up.
func (b *Broadcaster) Subscribe() (<-chan StreamEvent, func()) {
	ch := make(chan StreamEvent, subscriberBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) broadcast(ev StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
