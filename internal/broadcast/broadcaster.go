// ABOUTME: In-memory fan-out broadcaster for session events
// ABOUTME: Normalizes session notices and publishes them to every connected gateway client

package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/blueriver/tars-gateway/internal/session"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Topics carried by broadcast events.
const (
	TopicQR               = "qr"
	TopicConnectionStatus = "connection_status"
	TopicNewMessage       = "new_message"
)

// Event is one normalized record fanned out to subscribers.
type Event struct {
	Topic   string
	Payload any
}

// QRPayload carries the pairing challenge token.
type QRPayload struct {
	Token string `json:"token"`
}

// StatusPayload carries a session state change.
type StatusPayload struct {
	Status string `json:"status"`
}

// MessagePayload is a normalized inbound chat message.
type MessagePayload struct {
	From      string `json:"from"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

type subscriber struct {
	ch     chan Event
	topics map[string]struct{} // nil means all topics
}

// Broadcaster provides in-memory pub/sub for session events. Every
// subscriber receives every published event; there is no replay for
// subscribers that join after an event was published. A subscriber may
// optionally restrict itself to a topic subset.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	seen        *seenCache
	logger      *slog.Logger
}

// New creates a broadcaster. Pass nil logger for default.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]*subscriber),
		seen:        newSeenCache(seenTTL, seenMaxSize),
		logger:      logger,
	}
}

// Subscribe registers a subscriber and returns its event channel and a
// subscription ID. With no topics, the subscriber receives everything
// (the base contract). The subscription is cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, topics ...string) (<-chan Event, string) {
	subID := uuid.New().String()
	sub := &subscriber{ch: make(chan Event, subscriberBufferSize)}
	if len(topics) > 0 {
		sub.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subscribers[subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID, "topics", topics)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return sub.ch, subID
}

// Publish fans an event out to all matching subscribers.
// Non-blocking: events are dropped for subscribers whose channels are full.
// The sends happen under the read lock; Unsubscribe closes channels under
// the write lock, so a send can never hit a closed channel.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.topics != nil {
			if _, ok := sub.topics[ev.Topic]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber", "topic", ev.Topic)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[subID]
	if !ok {
		return
	}

	delete(b.subscribers, subID)
	close(sub.ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}

// Run consumes session notices until ctx is cancelled or the channel
// closes, normalizing each into a broadcast event. It is the sole consumer
// of the manager's notice stream.
func (b *Broadcaster) Run(ctx context.Context, notices <-chan session.Notice) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			b.handle(n)
		}
	}
}

func (b *Broadcaster) handle(n session.Notice) {
	switch n.Kind {
	case session.NoticeStatus:
		b.Publish(Event{Topic: TopicConnectionStatus, Payload: StatusPayload{Status: n.Status.String()}})

	case session.NoticeChallenge:
		b.Publish(Event{Topic: TopicQR, Payload: QRPayload{Token: n.Token}})

	case session.NoticeMessage:
		if n.Message == nil {
			return
		}
		payload, ok := Normalize(*n.Message)
		if !ok {
			return
		}
		// Reconnects can replay recent messages; broadcast each id once.
		if n.Message.ID != "" && b.seen.checkAndMark(n.Message.ID) {
			b.logger.Debug("duplicate inbound message ignored", "message_id", n.Message.ID)
			return
		}
		b.Publish(Event{Topic: TopicNewMessage, Payload: payload})
	}
}
