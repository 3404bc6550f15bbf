// ABOUTME: Network and Link interfaces for the external chat network.
// ABOUTME: Inbound callbacks are re-expressed as typed events on a channel.

package session

import "context"

// CloseReason classifies why a link closed.
type CloseReason int

const (
	// CloseTransient covers every closure the manager recovers from by
	// reconnecting immediately.
	CloseTransient CloseReason = iota

	// CloseLoggedOut means the network invalidated the session. The
	// manager stays Disconnected until explicitly restarted.
	CloseLoggedOut
)

func (r CloseReason) String() string {
	if r == CloseLoggedOut {
		return "logged_out"
	}
	return "transient"
}

// Event is a message from the network layer to the session manager.
type Event interface {
	isEvent()
}

// OpenedEvent signals the session is authenticated and usable.
type OpenedEvent struct{}

// ChallengeEvent carries the one-time authentication token (e.g. the
// payload of a scannable code) issued while pairing a new session.
type ChallengeEvent struct {
	Token string
}

// CredentialsEvent carries updated session authentication material.
// The manager persists it before processing further events.
type CredentialsEvent struct {
	Data []byte
}

// MessageEvent carries one inbound chat message.
type MessageEvent struct {
	Message RawMessage
}

// ClosedEvent signals the link is gone. It is the final event on a link.
type ClosedEvent struct {
	Reason CloseReason
	Detail string
}

func (OpenedEvent) isEvent()      {}
func (ChallengeEvent) isEvent()   {}
func (CredentialsEvent) isEvent() {}
func (MessageEvent) isEvent()     {}
func (ClosedEvent) isEvent()      {}

// RawMessage is an inbound message as delivered by the network layer,
// before normalization.
type RawMessage struct {
	ID          string
	From        string
	SenderLabel string
	Text        string
	Caption     string
	HasMedia    bool
	FromSelf    bool
	TimestampMs int64
}

// Document is an asset sent over the link.
type Document struct {
	Filename string
	MimeType string
	Data     []byte
}

// Network dials the external chat network. creds is the persisted
// authentication blob, or nil when pairing a fresh session.
type Network interface {
	Dial(ctx context.Context, creds []byte) (Link, error)
}

// Link is one live connection to the chat network. Events returns a channel
// that carries link events until a ClosedEvent; Close releases the link and
// is safe to call more than once.
type Link interface {
	Events() <-chan Event
	SendText(ctx context.Context, target, body string) error
	SendDocument(ctx context.Context, target string, doc Document) error
	Close() error
}
