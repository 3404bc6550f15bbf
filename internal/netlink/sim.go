// ABOUTME: In-process chat-network simulator implementing session.Network.
// ABOUTME: Used for dev mode and end-to-end tests; no real network traffic.

package netlink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blueriver/tars-gateway/internal/session"
)

// Simulator implements session.Network entirely in-process. A fresh dial
// (nil credentials) walks the pairing flow: it issues a challenge token,
// waits PairDelay, then delivers credentials and opens. A dial with
// credentials opens immediately. Sends always succeed; with Echo enabled,
// each sent text is reflected back as an inbound message from the target.
type Simulator struct {
	// PairDelay is how long a fresh session waits between the challenge
	// and the pairing completion.
	PairDelay time.Duration

	// Echo reflects outbound texts back as inbound messages.
	Echo bool

	logger *slog.Logger
}

// NewSimulator creates a simulator. Pass nil logger for default.
func NewSimulator(logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		PairDelay: 2 * time.Second,
		Echo:      true,
		logger:    logger.With("component", "netlink-sim"),
	}
}

// Dial opens a simulated link. It never fails.
func (s *Simulator) Dial(ctx context.Context, creds []byte) (session.Link, error) {
	l := &simLink{
		events: make(chan session.Event, 16),
		closed: make(chan struct{}),
		echo:   s.Echo,
		logger: s.logger,
	}
	go l.open(ctx, s.PairDelay, creds != nil)
	return l, nil
}

type simLink struct {
	events    chan session.Event
	closed    chan struct{}
	closeOnce sync.Once
	echo      bool
	logger    *slog.Logger
}

// open walks the pairing flow for fresh sessions and then opens the link.
func (l *simLink) open(ctx context.Context, pairDelay time.Duration, paired bool) {
	if !paired {
		token := uuid.New().String()
		l.logger.Info("simulated pairing challenge issued", "token", token)
		l.deliver(session.ChallengeEvent{Token: token})

		select {
		case <-ctx.Done():
			return
		case <-l.closed:
			return
		case <-time.After(pairDelay):
		}

		blob := fmt.Appendf(nil, "sim-credentials-%d", time.Now().UnixNano())
		l.deliver(session.CredentialsEvent{Data: blob})
	}

	l.deliver(session.OpenedEvent{})
}

func (l *simLink) Events() <-chan session.Event {
	return l.events
}

func (l *simLink) SendText(ctx context.Context, target, body string) error {
	select {
	case <-l.closed:
		return fmt.Errorf("link closed")
	default:
	}

	l.logger.Info("simulated text delivered", "target", target, "bytes", len(body))

	if l.echo {
		l.deliver(session.MessageEvent{Message: session.RawMessage{
			ID:          uuid.New().String(),
			From:        target,
			SenderLabel: "simulator",
			Text:        "echo: " + body,
			TimestampMs: time.Now().UnixMilli(),
		}})
	}
	return nil
}

func (l *simLink) SendDocument(ctx context.Context, target string, doc session.Document) error {
	select {
	case <-l.closed:
		return fmt.Errorf("link closed")
	default:
	}

	l.logger.Info("simulated document delivered",
		"target", target,
		"filename", doc.Filename,
		"bytes", len(doc.Data),
	)
	return nil
}

func (l *simLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	return nil
}

// deliver posts an event unless the link is closed.
func (l *simLink) deliver(ev session.Event) {
	select {
	case <-l.closed:
	case l.events <- ev:
	}
}
