// Package bus fans out store change notifications to stream subscribers.
// It satisfies the store's Publisher interface so the store never imports
// this package.
package bus

import (
	"context"
	"sync"
	"time"
)

const heartbeatInterval = 15 * time.Second

// Streams the bus carries. Timeline aggregates the other entity streams.
const (
	StreamThoughts = "thoughts"
	StreamTasks    = "tasks"
	StreamTimeline = "timeline"
)

// Message is one bus delivery. Heartbeats carry no payload.
type Message struct {
	Stream    string    `json:"stream"`
	Heartbeat bool      `json:"heartbeat,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	ch     chan Message
	cancel <-chan struct{}
}

// Bus is a per-stream fan-out hub. Subscribers see only messages published
// after they subscribed; a slow subscriber drops messages rather than
// blocking the publisher.
type Bus struct {
	mu          sync.Mutex
	subs        map[string]map[int]*subscriber
	nextID      int
	stopBeat    chan struct{}
	beatStarted sync.Once
}

func New() *Bus {
	return &Bus{
		subs:     make(map[string]map[int]*subscriber),
		stopBeat: make(chan struct{}),
	}
}

// Publish delivers the payload to every subscriber of the stream. Anything
// published to an entity stream is mirrored onto the timeline stream.
func (b *Bus) Publish(stream string, payload any) {
	msg := Message{Stream: stream, Payload: payload, Timestamp: time.Now()}
	b.deliver(stream, msg)
	if stream != StreamTimeline {
		msg.Stream = StreamTimeline
		b.deliver(StreamTimeline, msg)
	}
}

func (b *Bus) deliver(stream string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[stream] {
		select {
		case sub.ch <- msg:
		default: // drop rather than stall the writer
		}
	}
}

// Subscribe attaches to a stream. The returned channel receives published
// messages plus a heartbeat every 15 seconds, and closes when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, stream string) <-chan Message {
	b.beatStarted.Do(func() { go b.heartbeatLoop() })

	sub := &subscriber{
		ch:     make(chan Message, 64),
		cancel: ctx.Done(),
	}

	b.mu.Lock()
	if b.subs[stream] == nil {
		b.subs[stream] = make(map[int]*subscriber)
	}
	id := b.nextID
	b.nextID++
	b.subs[stream][id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[stream], id)
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch
}

// SubscriberCount reports attached subscribers for a stream.
func (b *Bus) SubscriberCount(stream string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[stream])
}

// Close stops the heartbeat loop. Subscriber channels close with their
// contexts, not here.
func (b *Bus) Close() {
	select {
	case <-b.stopBeat:
	default:
		close(b.stopBeat)
	}
}

func (b *Bus) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopBeat:
			return
		case t := <-ticker.C:
			b.mu.Lock()
			for stream, subs := range b.subs {
				msg := Message{Stream: stream, Heartbeat: true, Timestamp: t}
				for _, sub := range subs {
					select {
					case sub.ch <- msg:
					default:
					}
				}
			}
			b.mu.Unlock()
		}
	}
}
