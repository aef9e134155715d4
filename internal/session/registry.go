package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tullo/livechat/internal/models"
)

// Capacity is the number of events buffered per subscriber before the
// oldest ones are dropped.
const Capacity = 32

var (
	// ErrSessionMissing is returned by Send when nobody ever subscribed to the session.
	ErrSessionMissing = errors.New("session has no broadcast channel")
	// ErrSendFailed is returned by Send when the session has no active receivers.
	ErrSendFailed = errors.New("session has no active receivers")
	// ErrClosed is returned by Recv once the registry has been closed.
	ErrClosed = errors.New("session channel closed")
)

// LaggedError reports events dropped because the subscriber fell behind.
// It is not fatal: the next Recv continues with the oldest retained event.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged, %d events skipped", e.Skipped)
}

// ID is an opaque per-browser-session identifier
type ID string

type topic struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	closed   bool
	lastUsed time.Time
}

// guard is a session's action mutex. refs counts callers between Guard and
// its release; Sweep only drops guards nobody references.
type guard struct {
	mu   sync.Mutex
	refs int
}

type cancelToken struct {
	cancel context.CancelFunc
}

// Registry maps session ids to broadcast channels and owns the per-session
// guard and cancellation maps. Entries are created on first use and removed
// only by Sweep.
type Registry struct {
	log *slog.Logger
	now func() time.Time

	topicsMu sync.RWMutex
	topics   map[ID]*topic

	guardsMu sync.Mutex
	guards   map[ID]*guard

	cancelsMu sync.Mutex
	cancels   map[ID]*cancelToken

	seq atomic.Uint64
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		now:     time.Now,
		topics:  make(map[ID]*topic),
		guards:  make(map[ID]*guard),
		cancels: make(map[ID]*cancelToken),
	}
}

// Subscribe attaches a new receiver to the session, creating its channel if needed.
// Callers must Release the subscription when done, typically with defer.
func (r *Registry) Subscribe(id ID) *Subscription {
	sub := &Subscription{events: make(chan models.Event, Capacity)}

	// The topic lock is taken under topicsMu so Sweep cannot evict a topic
	// between lookup and registration.
	r.topicsMu.Lock()
	t, ok := r.topics[id]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		r.topics[id] = t
	}
	t.mu.Lock()
	t.lastUsed = r.now()
	if t.closed {
		close(sub.events)
	} else {
		t.subs[sub] = struct{}{}
	}
	t.mu.Unlock()
	r.topicsMu.Unlock()

	sub.release = func() {
		t.mu.Lock()
		delete(t.subs, sub)
		t.lastUsed = r.now()
		t.mu.Unlock()
	}
	return sub
}

// Send pushes an event to every active subscriber of the session.
// Delivery is best-effort; failures are reported and never retried.
func (r *Registry) Send(id ID, evt models.Event) error {
	r.topicsMu.RLock()
	t, ok := r.topics[id]
	r.topicsMu.RUnlock()
	if !ok {
		return ErrSessionMissing
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastUsed = r.now()
	if t.closed || len(t.subs) == 0 {
		return ErrSendFailed
	}
	for sub := range t.subs {
		sub.push(evt)
	}
	return nil
}

// ActiveSubscribers returns the number of live subscriptions for a session.
func (r *Registry) ActiveSubscribers(id ID) int {
	r.topicsMu.RLock()
	t, ok := r.topics[id]
	r.topicsMu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Len returns the number of sessions holding a broadcast channel.
func (r *Registry) Len() int {
	r.topicsMu.RLock()
	defer r.topicsMu.RUnlock()
	return len(r.topics)
}

// Close ends every subscription. Subscribers drain what is buffered and then see ErrClosed.
func (r *Registry) Close() {
	r.topicsMu.Lock()
	defer r.topicsMu.Unlock()
	for _, t := range r.topics {
		t.mu.Lock()
		if !t.closed {
			t.closed = true
			for sub := range t.subs {
				close(sub.events)
			}
			t.subs = map[*Subscription]struct{}{}
		}
		t.mu.Unlock()
	}
}

// Guard returns the session's action mutex, creating it on first use. The
// mutex stays registered until release is called, so callers must release
// it once they are done with it, locked or waiting.
func (r *Registry) Guard(id ID) (mu *sync.Mutex, release func()) {
	r.guardsMu.Lock()
	defer r.guardsMu.Unlock()
	g, ok := r.guards[id]
	if !ok {
		g = &guard{}
		r.guards[id] = g
	}
	g.refs++

	var once sync.Once
	return &g.mu, func() {
		once.Do(func() {
			r.guardsMu.Lock()
			g.refs--
			r.guardsMu.Unlock()
		})
	}
}

// SwapCancel installs cancel as the session's current token and cancels the
// one it replaces. The returned func clears the token if it is still current.
func (r *Registry) SwapCancel(id ID, cancel context.CancelFunc) (release func()) {
	tok := &cancelToken{cancel: cancel}

	r.cancelsMu.Lock()
	prev := r.cancels[id]
	r.cancels[id] = tok
	r.cancelsMu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	return func() {
		r.cancelsMu.Lock()
		if r.cancels[id] == tok {
			delete(r.cancels, id)
		}
		r.cancelsMu.Unlock()
	}
}

// NextSeq returns the next value of the process-wide announcement counter.
func (r *Registry) NextSeq() uint64 {
	return r.seq.Add(1)
}

// Sweep drops sessions that have no subscribers, no referenced guard and no
// in-flight cancellable action, and were last touched more than idle ago.
// It returns the number of sessions evicted.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.topicsMu.Lock()
	r.guardsMu.Lock()
	r.cancelsMu.Lock()
	defer r.cancelsMu.Unlock()
	defer r.guardsMu.Unlock()
	defer r.topicsMu.Unlock()

	evicted := 0
	for id, t := range r.topics {
		t.mu.Lock()
		busy := len(t.subs) > 0 || t.lastUsed.After(cutoff)
		t.mu.Unlock()
		if busy {
			continue
		}
		if _, inFlight := r.cancels[id]; inFlight {
			continue
		}
		if g, ok := r.guards[id]; ok {
			if g.refs > 0 {
				continue
			}
			delete(r.guards, id)
		}
		delete(r.topics, id)
		evicted++
	}

	// Guards of sessions that never subscribed have no topic to age with.
	for id, g := range r.guards {
		if _, ok := r.topics[id]; !ok && g.refs == 0 {
			delete(r.guards, id)
		}
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.log.Debug("evicted idle sessions", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Subscription is one receiver of a session's events.
type Subscription struct {
	events  chan models.Event
	lagged  atomic.Uint64
	release func()
	once    sync.Once
}

// push is called with the topic lock held, so it is the only writer.
func (s *Subscription) push(evt models.Event) {
	select {
	case s.events <- evt:
		return
	default:
	}
	// Full: drop the oldest event to make room.
	select {
	case <-s.events:
		s.lagged.Add(1)
	default:
	}
	select {
	case s.events <- evt:
	default:
		s.lagged.Add(1)
	}
}

// Recv blocks for the next event. It returns a *LaggedError when events were
// dropped since the previous call, ErrClosed when the channel is closed, and
// ctx.Err() when ctx is done.
func (s *Subscription) Recv(ctx context.Context) (models.Event, error) {
	if n := s.lagged.Swap(0); n > 0 {
		return models.Event{}, &LaggedError{Skipped: n}
	}
	select {
	case evt, ok := <-s.events:
		if !ok {
			return models.Event{}, ErrClosed
		}
		return evt, nil
	case <-ctx.Done():
		return models.Event{}, ctx.Err()
	}
}

// Release detaches the subscription from its session. It is safe to call more than once.
func (s *Subscription) Release() {
	s.once.Do(s.release)
}
