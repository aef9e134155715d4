package demo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tullo/livechat/internal/models"
	"github.com/tullo/livechat/internal/session"
)

// Announcement states
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateDone      = "done"
	StateCancelled = "cancelled"
)

// Announcement is the data carried by every demo action event.
// Value is the caller's original state, echoed back on completion.
type Announcement struct {
	Seq    uint64 `json:"seq"`
	Action string `json:"action"`
	State  string `json:"state"`
	Value  string `json:"value,omitempty"`
}

// Actions runs the guarded and cancellable demos on top of a session registry.
type Actions struct {
	registry *session.Registry
	work     time.Duration
	delay    time.Duration
	log      *slog.Logger
}

// NewActions creates the demo actions. work is how long the guarded action
// holds its lock; delay is how long the cancellable action waits before finishing.
func NewActions(registry *session.Registry, work, delay time.Duration, log *slog.Logger) *Actions {
	if log == nil {
		log = slog.Default()
	}
	return &Actions{registry: registry, work: work, delay: delay, log: log}
}

// Guarded runs at most one invocation per session at a time. A trigger that
// finds the guard held announces "queued" and waits its turn. The critical
// section is not interruptible.
func (a *Actions) Guarded(id session.ID, original string) {
	seq := a.registry.NextSeq()
	guard, release := a.registry.Guard(id)
	defer release()

	if !guard.TryLock() {
		a.announce(id, models.EventGuarded, Announcement{Seq: seq, State: StateQueued})
		guard.Lock()
	}

	defer guard.Unlock()

	a.announce(id, models.EventGuarded, Announcement{Seq: seq, State: StateRunning})
	time.Sleep(a.work)
	// done goes out before the guard is released so a waiting trigger's
	// "running" can never precede it on the stream.
	a.announce(id, models.EventGuarded, Announcement{Seq: seq, State: StateDone, Value: original})
}

// Cancellable supersedes the session's previous in-flight invocation, which
// observes cancellation and announces "cancelled" instead of "done".
// It returns true when the delay elapsed without cancellation.
func (a *Actions) Cancellable(ctx context.Context, id session.ID, original string) bool {
	seq := a.registry.NextSeq()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := a.registry.SwapCancel(id, cancel)
	defer release()

	a.announce(id, models.EventCancellable, Announcement{Seq: seq, State: StateRunning})

	timer := time.NewTimer(a.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		a.announce(id, models.EventCancellable, Announcement{Seq: seq, State: StateDone, Value: original})
		return true
	case <-ctx.Done():
		a.announce(id, models.EventCancellable, Announcement{Seq: seq, State: StateCancelled})
		return false
	}
}

func (a *Actions) announce(id session.ID, name string, ann Announcement) {
	ann.Action = name
	data, err := json.Marshal(ann)
	if err != nil {
		a.log.Error("failed to encode announcement", "error", err)
		return
	}
	if err := a.registry.Send(id, models.Event{Name: name, Data: string(data)}); err != nil {
		level := slog.LevelDebug
		if !errors.Is(err, session.ErrSessionMissing) && !errors.Is(err, session.ErrSendFailed) {
			level = slog.LevelWarn
		}
		a.log.Log(context.Background(), level, "announcement not delivered",
			"session", id, "action", name, "state", ann.State, "error", err)
	}
}
