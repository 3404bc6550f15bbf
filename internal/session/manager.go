// ABOUTME: Owns the single chat-network session and its connect/reconnect state machine.
// ABOUTME: Serializes all session mutation through one goroutine; emits notices for fan-out.

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/blueriver/tars-gateway/internal/credstore"
	"github.com/blueriver/tars-gateway/internal/dispatch"
)

// ErrNotConnected indicates a send was submitted while the session is not
// in StateConnected.
var ErrNotConnected = errors.New("session not connected")

// credentialKey is the store key for the session's authentication blob.
const credentialKey = "session"

// noticeBufferSize is the channel buffer for the manager's notice stream.
const noticeBufferSize = 64

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingChallenge
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// NoticeKind identifies the type of a Notice.
type NoticeKind int

const (
	NoticeStatus NoticeKind = iota
	NoticeChallenge
	NoticeMessage
)

// Notice is an inbound session event destined for the event broadcaster.
type Notice struct {
	Kind    NoticeKind
	Status  State       // NoticeStatus
	Token   string      // NoticeChallenge
	Message *RawMessage // NoticeMessage
}

// Manager owns the one session to the external chat network. All state
// transitions, credential writes and outbound submissions go through it;
// no other component touches session state directly.
type Manager struct {
	network       Network
	creds         credstore.Store
	dialRetryWait time.Duration
	logger        *slog.Logger

	mu        sync.RWMutex
	state     State
	lastClose string
	link      Link

	notices chan Notice
	restart chan struct{}
}

// NewManager creates a Manager in StateDisconnected. Pass nil logger for
// default.
func NewManager(network Network, creds credstore.Store, dialRetryWait time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if dialRetryWait <= 0 {
		dialRetryWait = 3 * time.Second
	}
	return &Manager{
		network:       network,
		creds:         creds,
		dialRetryWait: dialRetryWait,
		logger:        logger,
		state:         StateDisconnected,
		notices:       make(chan Notice, noticeBufferSize),
		restart:       make(chan struct{}, 1),
	}
}

// Notices returns the manager's event stream. It is consumed by exactly one
// reader, the event broadcaster.
func (m *Manager) Notices() <-chan Notice {
	return m.notices
}

// State returns the current session state. Never blocks on the network.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastCloseReason returns the reason recorded for the most recent closure,
// or an empty string if the session has never closed.
func (m *Manager) LastCloseReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastClose
}

// Restart wakes a manager parked after a logged-out closure. It is the
// explicit external restart; a no-op while the session is live.
func (m *Manager) Restart() {
	select {
	case m.restart <- struct{}{}:
	default:
	}
}

// Submit executes one outbound request against the live link.
// Sends fail with ErrNotConnected unless the session is Connected;
// KindCheckStatus is always answerable and reflects the current state.
func (m *Manager) Submit(ctx context.Context, req *dispatch.Request) (*dispatch.Result, error) {
	if req.Kind == dispatch.KindCheckStatus {
		st := m.State()
		return &dispatch.Result{Connected: st == StateConnected, Status: st.String()}, nil
	}

	m.mu.RLock()
	st, link := m.state, m.link
	m.mu.RUnlock()

	if st != StateConnected || link == nil {
		return nil, ErrNotConnected
	}

	switch req.Kind {
	case dispatch.KindSendText:
		if err := link.SendText(ctx, req.Target, req.Body); err != nil {
			return nil, err
		}
	case dispatch.KindSendDocument:
		doc := Document{}
		if req.Document != nil {
			doc = Document{
				Filename: req.Document.Filename,
				MimeType: req.Document.MimeType,
				Data:     req.Document.Data,
			}
		}
		if err := link.SendDocument(ctx, req.Target, doc); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unknown request kind")
	}

	return &dispatch.Result{Connected: true, Status: st.String()}, nil
}

// Run drives the connect/reconnect loop until ctx is canceled. A transient
// closure re-enters Connecting immediately; a logged-out closure parks the
// manager in Disconnected until Restart is called. A new connection attempt
// is only started after the previous one has fully resolved.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.transition(StateConnecting, "")

		link, err := m.network.Dial(ctx, m.loadCredentials(ctx))
		if err != nil {
			m.logger.Error("dialing chat network failed", "error", err)
			m.transition(StateDisconnected, "dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.dialRetryWait):
			}
			continue
		}

		m.setLink(link)
		reason, detail := m.serve(ctx, link)
		m.setLink(nil)

		if detail == "" {
			detail = reason.String()
		}
		m.transition(StateDisconnected, detail)

		if err := ctx.Err(); err != nil {
			return err
		}

		if reason == CloseLoggedOut {
			// A Restart issued while the session was still live must not
			// carry over; only a request made after this point wakes us.
			select {
			case <-m.restart:
			default:
			}

			m.logger.Warn("session logged out, waiting for explicit restart")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.restart:
				m.logger.Info("session restart requested")
			}
		}
	}
}

// serve consumes link events until the link closes, returning the closure
// reason. This is the only goroutine that mutates session state while the
// link is live.
func (m *Manager) serve(ctx context.Context, link Link) (CloseReason, string) {
	defer func() {
		if err := link.Close(); err != nil {
			m.logger.Debug("closing link", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return CloseTransient, "shutdown"

		case ev, ok := <-link.Events():
			if !ok {
				return CloseTransient, "event channel closed"
			}

			switch ev := ev.(type) {
			case OpenedEvent:
				m.transition(StateConnected, "")

			case ChallengeEvent:
				m.transition(StateAwaitingChallenge, "")
				m.emit(Notice{Kind: NoticeChallenge, Token: ev.Token})

			case CredentialsEvent:
				m.persistCredentials(ctx, ev.Data)

			case MessageEvent:
				msg := ev.Message
				m.emit(Notice{Kind: NoticeMessage, Message: &msg})

			case ClosedEvent:
				return ev.Reason, ev.Detail
			}
		}
	}
}

// loadCredentials returns the persisted blob, or nil when none exists yet
// (fresh pairing).
func (m *Manager) loadCredentials(ctx context.Context) []byte {
	data, err := m.creds.Load(ctx, credentialKey)
	if errors.Is(err, credstore.ErrNotFound) {
		m.logger.Info("no stored credentials, pairing a fresh session")
		return nil
	}
	if err != nil {
		m.logger.Error("loading credentials failed", "error", err)
		return nil
	}
	return data
}

// persistCredentials writes an updated blob within a bounded scope. A failed
// write is logged but never aborts the transition that triggered it.
func (m *Manager) persistCredentials(ctx context.Context, data []byte) {
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.creds.Save(saveCtx, credentialKey, data); err != nil {
		m.logger.Error("persisting credentials failed", "error", err)
		return
	}
	m.logger.Debug("credentials persisted", "bytes", len(data))
}

// transition moves to the next state, recording the close reason on
// disconnects, and emits a status notice when the state actually changed.
func (m *Manager) transition(next State, closeReason string) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	if next == StateDisconnected && closeReason != "" {
		m.lastClose = closeReason
	}
	m.mu.Unlock()

	if prev == next {
		return
	}

	m.logger.Info("session state changed", "from", prev.String(), "to", next.String())
	m.emit(Notice{Kind: NoticeStatus, Status: next})
}

func (m *Manager) setLink(link Link) {
	m.mu.Lock()
	m.link = link
	m.mu.Unlock()
}

// emit publishes a notice without blocking the session loop. If the
// broadcaster has fallen behind the notice is dropped.
func (m *Manager) emit(n Notice) {
	select {
	case m.notices <- n:
	default:
		m.logger.Warn("notice channel full, dropping notice", "kind", n.Kind)
	}
}
