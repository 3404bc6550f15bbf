// ABOUTME: Tests for the session manager state machine and reconnect policy
// ABOUTME: Uses in-memory fakes for the chat network and the credential store

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueriver/tars-gateway/internal/credstore"
	"github.com/blueriver/tars-gateway/internal/dispatch"
)

// memStore is an in-memory credstore.Store.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	if !ok {
		return nil, credstore.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[key] = data
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	return data, ok
}

// fakeNetwork hands out pre-queued links, one per dial.
type fakeNetwork struct {
	links chan *fakeLink
	dials atomic.Int64

	mu        sync.Mutex
	lastCreds []byte
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{links: make(chan *fakeLink, 4)}
}

func (n *fakeNetwork) Dial(ctx context.Context, creds []byte) (Link, error) {
	n.dials.Add(1)
	n.mu.Lock()
	n.lastCreds = creds
	n.mu.Unlock()

	select {
	case link := <-n.links:
		return link, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *fakeNetwork) dialCreds() []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastCreds
}

type fakeLink struct {
	events chan Event

	mu      sync.Mutex
	sent    []string
	sendErr error
}

func newFakeLink() *fakeLink {
	return &fakeLink{events: make(chan Event, 16)}
}

func (l *fakeLink) Events() <-chan Event { return l.events }

func (l *fakeLink) SendText(ctx context.Context, target, body string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, target+": "+body)
	return nil
}

func (l *fakeLink) SendDocument(ctx context.Context, target string, doc Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, target+": <"+doc.Filename+">")
	return nil
}

func (l *fakeLink) Close() error { return nil }

func (l *fakeLink) sentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

// waitNotice drains notices until one satisfies pred or the timeout hits.
func waitNotice(t *testing.T, notices <-chan Notice, pred func(Notice) bool) Notice {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-notices:
			if pred(n) {
				return n
			}
		case <-deadline:
			t.Fatal("expected notice never arrived")
			return Notice{}
		}
	}
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State() == want
	}, 2*time.Second, 5*time.Millisecond, "expected state %s", want)
}

func TestSubmitWhileDisconnected(t *testing.T) {
	m := NewManager(newFakeNetwork(), newMemStore(), time.Second, nil)

	_, err := m.Submit(testContext(t), &dispatch.Request{Kind: dispatch.KindSendText, Target: "x", Body: "hi"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCheckStatusAlwaysAnswers(t *testing.T) {
	m := NewManager(newFakeNetwork(), newMemStore(), time.Second, nil)

	res, err := m.Submit(testContext(t), &dispatch.Request{Kind: dispatch.KindCheckStatus})
	require.NoError(t, err)
	assert.False(t, res.Connected)
	assert.Equal(t, "disconnected", res.Status)
}

func TestConnectFlow(t *testing.T) {
	network := newFakeNetwork()
	m := NewManager(network, newMemStore(), time.Second, nil)
	notices := m.Notices()

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go m.Run(ctx)

	link := newFakeLink()
	network.links <- link
	link.events <- OpenedEvent{}

	waitState(t, m, StateConnected)
	waitNotice(t, notices, func(n Notice) bool {
		return n.Kind == NoticeStatus && n.Status == StateConnected
	})

	res, err := m.Submit(ctx, &dispatch.Request{Kind: dispatch.KindSendText, Target: "555", Body: "hello"})
	require.NoError(t, err)
	assert.True(t, res.Connected)
	assert.Equal(t, 1, link.sentCount())
}

func TestChallengeFlow(t *testing.T) {
	network := newFakeNetwork()
	store := newMemStore()
	m := NewManager(network, store, time.Second, nil)
	notices := m.Notices()

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go m.Run(ctx)

	link := newFakeLink()
	network.links <- link

	link.events <- ChallengeEvent{Token: "pair-me"}
	n := waitNotice(t, notices, func(n Notice) bool { return n.Kind == NoticeChallenge })
	assert.Equal(t, "pair-me", n.Token)
	waitState(t, m, StateAwaitingChallenge)

	link.events <- CredentialsEvent{Data: []byte("fresh-creds")}
	link.events <- OpenedEvent{}
	waitState(t, m, StateConnected)

	require.Eventually(t, func() bool {
		data, ok := store.get("session")
		return ok && string(data) == "fresh-creds"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCredentialSaveFailureIsNotFatal(t *testing.T) {
	network := newFakeNetwork()
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	m := NewManager(network, store, time.Second, nil)

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go m.Run(ctx)

	link := newFakeLink()
	network.links <- link

	link.events <- CredentialsEvent{Data: []byte("doomed")}
	link.events <- OpenedEvent{}

	// The session still reaches Connected despite the failed write.
	waitState(t, m, StateConnected)
}

func TestTransientCloseRedials(t *testing.T) {
	network := newFakeNetwork()
	m := NewManager(network, newMemStore(), 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go m.Run(ctx)

	first := newFakeLink()
	network.links <- first
	first.events <- OpenedEvent{}
	waitState(t, m, StateConnected)

	second := newFakeLink()
	network.links <- second
	first.events <- ClosedEvent{Reason: CloseTransient, Detail: "stream error"}

	second.events <- OpenedEvent{}
	waitState(t, m, StateConnected)

	assert.EqualValues(t, 2, network.dials.Load())
	assert.Equal(t, "stream error", m.LastCloseReason())
}

func TestLoggedOutWaitsForRestart(t *testing.T) {
	network := newFakeNetwork()
	m := NewManager(network, newMemStore(), 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go m.Run(ctx)

	first := newFakeLink()
	network.links <- first
	first.events <- OpenedEvent{}
	waitState(t, m, StateConnected)

	first.events <- ClosedEvent{Reason: CloseLoggedOut}
	waitState(t, m, StateDisconnected)

	// No redial happens while parked.
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, network.dials.Load())

	second := newFakeLink()
	network.links <- second
	m.Restart()

	second.events <- OpenedEvent{}
	waitState(t, m, StateConnected)
	assert.EqualValues(t, 2, network.dials.Load())
}

func TestRestartWhileLiveDoesNotUnparkLogout(t *testing.T) {
	network := newFakeNetwork()
	m := NewManager(network, newMemStore(), 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go m.Run(ctx)

	first := newFakeLink()
	network.links <- first
	first.events <- OpenedEvent{}
	waitState(t, m, StateConnected)

	// A restart issued while the session is live is a no-op; it must not
	// satisfy the wait entered by a later logout.
	m.Restart()

	first.events <- ClosedEvent{Reason: CloseLoggedOut}
	waitState(t, m, StateDisconnected)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, network.dials.Load())
	assert.Equal(t, StateDisconnected, m.State())

	// Only a restart requested after the logout wakes the manager.
	second := newFakeLink()
	network.links <- second
	m.Restart()
	second.events <- OpenedEvent{}
	waitState(t, m, StateConnected)
	assert.EqualValues(t, 2, network.dials.Load())
}

func TestStoredCredentialsPassedToDial(t *testing.T) {
	network := newFakeNetwork()
	store := newMemStore()
	require.NoError(t, store.Save(testContext(t), "session", []byte("resume-me")))

	m := NewManager(network, store, time.Second, nil)

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go m.Run(ctx)

	link := newFakeLink()
	network.links <- link
	link.events <- OpenedEvent{}
	waitState(t, m, StateConnected)

	assert.Equal(t, []byte("resume-me"), network.dialCreds())
}

func TestMessageNotice(t *testing.T) {
	network := newFakeNetwork()
	m := NewManager(network, newMemStore(), time.Second, nil)
	notices := m.Notices()

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go m.Run(ctx)

	link := newFakeLink()
	network.links <- link
	link.events <- OpenedEvent{}
	waitState(t, m, StateConnected)

	link.events <- MessageEvent{Message: RawMessage{ID: "m1", From: "555", Text: "yo"}}

	n := waitNotice(t, notices, func(n Notice) bool { return n.Kind == NoticeMessage })
	require.NotNil(t, n.Message)
	assert.Equal(t, "yo", n.Message.Text)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "awaiting_challenge", StateAwaitingChallenge.String())
	assert.Equal(t, "connected", StateConnected.String())
}

// testContext returns a context that is canceled when the test ends.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
