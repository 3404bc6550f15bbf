// ABOUTME: Wraps each outbound operation with a correlation id and a deadline race.
// ABOUTME: Delivers exactly one result per request; late completions are discarded.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout indicates the deadline elapsed before the network layer resolved.
var ErrTimeout = errors.New("send timed out")

// Kind identifies the outbound operation type.
type Kind int

const (
	KindSendText Kind = iota
	KindSendDocument
	KindCheckStatus
)

func (k Kind) String() string {
	switch k {
	case KindSendText:
		return "send_text"
	case KindSendDocument:
		return "send_document"
	case KindCheckStatus:
		return "check_status"
	default:
		return "unknown"
	}
}

// Request is one outbound operation against the chat-network session.
type Request struct {
	// CorrelationID binds the request to its eventual result. Generated
	// when empty; never reused while the request is in flight.
	CorrelationID string

	Kind     Kind
	Target   string
	Body     string
	Document *Document

	// Timeout overrides the queue's default deadline when non-zero.
	Timeout time.Duration
}

// Document is an asset payload attached to a KindSendDocument request.
type Document struct {
	Filename string
	MimeType string
	Data     []byte
}

// Result carries the session-side answer for a resolved request.
type Result struct {
	Connected bool
	Status    string
}

// Sender executes a request against the underlying session.
// Implemented by the session manager.
type Sender interface {
	Submit(ctx context.Context, req *Request) (*Result, error)
}

// Queue races each request's execution against its deadline. Requests are
// independent: no ordering is imposed between them, including requests for
// the same target. Cancellation is best-effort only; a timed-out request's
// underlying network operation may still complete, and its late result is
// dropped.
type Queue struct {
	sender         Sender
	defaultTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a Queue dispatching to the given sender.
func New(sender Sender, defaultTimeout time.Duration, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		sender:         sender,
		defaultTimeout: defaultTimeout,
		logger:         logger,
		inflight:       make(map[string]struct{}),
	}
}

type outcome struct {
	res *Result
	err error
}

// Do executes the request and returns its result, ErrTimeout if the deadline
// elapsed first, or the sender's error. The result is delivered exactly once.
// KindCheckStatus requests are answered directly without a deadline race.
func (q *Queue) Do(ctx context.Context, req *Request) (*Result, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}

	if err := q.track(req.CorrelationID); err != nil {
		return nil, err
	}

	if req.Kind == KindCheckStatus {
		defer q.release(req.CorrelationID)
		return q.sender.Submit(ctx, req)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = q.defaultTimeout
	}

	// Single-slot buffer: a completion arriving after we stopped waiting
	// parks here and is discarded with the channel.
	done := make(chan outcome, 1)
	go func() {
		defer q.release(req.CorrelationID)
		res, err := q.sender.Submit(ctx, req)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.res, out.err
	case <-timer.C:
		q.logger.Warn("request deadline elapsed",
			"correlation_id", req.CorrelationID,
			"kind", req.Kind.String(),
			"timeout", timeout,
		)
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight reports how many requests are currently executing.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// track registers a correlation id, rejecting ids already in flight.
func (q *Queue) track(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.inflight[id]; exists {
		return fmt.Errorf("correlation id %q already in flight", id)
	}
	q.inflight[id] = struct{}{}
	return nil
}

func (q *Queue) release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, id)
}
