package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tullo/livechat/internal/models"
)

func recvWithin(t *testing.T, sub *Subscription, d time.Duration) (models.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return sub.Recv(ctx)
}

func TestRegistry_SendWithoutSubscribe(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Send("never", models.Event{Data: "x"})
	require.ErrorIs(t, err, ErrSessionMissing)
}

func TestRegistry_SendAfterRelease(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)

	sub := r.Subscribe("s1")
	req.Equal(1, r.ActiveSubscribers("s1"))
	sub.Release()
	sub.Release()
	req.Equal(0, r.ActiveSubscribers("s1"))

	// Then the channel still exists but nobody listens
	req.ErrorIs(r.Send("s1", models.Event{Data: "x"}), ErrSendFailed)
}

func TestRegistry_SendReachesOnlyOwnSession(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	a := r.Subscribe("a")
	defer a.Release()
	b := r.Subscribe("b")
	defer b.Release()

	req.NoError(r.Send("a", models.Event{Name: "message", Data: "for a"}))

	evt, err := recvWithin(t, a, 100*time.Millisecond)
	req.NoError(err)
	req.Equal(models.Event{Name: "message", Data: "for a"}, evt)

	_, err = recvWithin(t, b, 20*time.Millisecond)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestRegistry_Fanout(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	first := r.Subscribe("s")
	defer first.Release()
	second := r.Subscribe("s")
	defer second.Release()

	req.NoError(r.Send("s", models.Event{Data: "hello"}))

	for _, sub := range []*Subscription{first, second} {
		evt, err := recvWithin(t, sub, 100*time.Millisecond)
		req.NoError(err)
		req.Equal("hello", evt.Data)
	}
}

func TestRegistry_LaggedSubscriberSkipsForward(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	sub := r.Subscribe("slow")
	defer sub.Release()

	// Given more events than the buffer holds
	for i := 0; i < Capacity+5; i++ {
		req.NoError(r.Send("slow", models.Event{Data: fmt.Sprint(i)}))
	}

	// Then the first read reports the loss
	_, err := recvWithin(t, sub, 100*time.Millisecond)
	var lagged *LaggedError
	req.True(errors.As(err, &lagged))
	req.Equal(uint64(5), lagged.Skipped)

	// And reading resumes from the oldest retained event
	evt, err := recvWithin(t, sub, 100*time.Millisecond)
	req.NoError(err)
	req.Equal("5", evt.Data)
}

func TestRegistry_CloseEndsSubscribers(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	sub := r.Subscribe("s")
	defer sub.Release()
	req.NoError(r.Send("s", models.Event{Data: "last"}))

	r.Close()

	evt, err := recvWithin(t, sub, 100*time.Millisecond)
	req.NoError(err)
	req.Equal("last", evt.Data)
	_, err = recvWithin(t, sub, 100*time.Millisecond)
	req.ErrorIs(err, ErrClosed)

	late := r.Subscribe("s")
	_, err = recvWithin(t, late, 100*time.Millisecond)
	req.ErrorIs(err, ErrClosed)
}

func TestRegistry_ConcurrentSenders(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	sub := r.Subscribe("s")
	defer sub.Release()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_ = r.Send("s", models.Event{Data: "x"})
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		_, err := recvWithin(t, sub, 100*time.Millisecond)
		req.NoError(err)
	}
}

func TestRegistry_GuardIsPerSession(t *testing.T) {
	r := NewRegistry(nil)
	a1, release1 := r.Guard("a")
	defer release1()
	a2, release2 := r.Guard("a")
	defer release2()
	b, releaseB := r.Guard("b")
	defer releaseB()

	require.Same(t, a1, a2)
	require.NotSame(t, a1, b)
}

func TestRegistry_SwapCancel(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)

	firstCtx, firstCancel := context.WithCancel(context.Background())
	clearFirst := r.SwapCancel("s", firstCancel)

	secondCtx, secondCancel := context.WithCancel(context.Background())
	defer secondCancel()
	clearSecond := r.SwapCancel("s", secondCancel)

	req.ErrorIs(firstCtx.Err(), context.Canceled)
	req.NoError(secondCtx.Err())

	// A stale clear must not remove the newer token
	clearFirst()
	r.cancelsMu.Lock()
	_, present := r.cancels["s"]
	r.cancelsMu.Unlock()
	req.True(present)

	clearSecond()
	r.cancelsMu.Lock()
	_, present = r.cancels["s"]
	r.cancelsMu.Unlock()
	req.False(present)
}

func TestRegistry_NextSeqIsMonotonic(t *testing.T) {
	r := NewRegistry(nil)
	prev := r.NextSeq()
	for i := 0; i < 10; i++ {
		next := r.NextSeq()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestRegistry_Sweep(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	now := time.Now()
	r.now = func() time.Time { return now }

	idle := r.Subscribe("idle")
	idle.Release()
	active := r.Subscribe("active")
	defer active.Release()
	guarded := r.Subscribe("guarded")
	guarded.Release()
	g, releaseGuard := r.Guard("guarded")
	g.Lock()
	inflight := r.Subscribe("inflight")
	inflight.Release()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.SwapCancel("inflight", cancel)

	// Nothing is old enough yet
	req.Zero(r.Sweep(time.Minute))

	now = now.Add(2 * time.Minute)
	req.Equal(1, r.Sweep(time.Minute))
	req.Equal(3, r.Len())
	req.ErrorIs(r.Send("idle", models.Event{}), ErrSessionMissing)

	// Once the guard is released the session becomes evictable
	g.Unlock()
	releaseGuard()
	req.Equal(1, r.Sweep(time.Minute))
	req.Equal(2, r.Len())
}

func TestRegistry_SweepKeepsReferencedGuard(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	now := time.Now()
	r.now = func() time.Time { return now }
	sub := r.Subscribe("s")
	sub.Release()

	// Given a trigger that fetched the guard but has not locked it yet
	waiting, release := r.Guard("s")
	now = now.Add(2 * time.Minute)

	// When the sweeper runs
	req.Zero(r.Sweep(time.Minute))

	// Then a later trigger still contends on the same mutex
	later, releaseLater := r.Guard("s")
	req.Same(waiting, later)
	waiting.Lock()
	req.False(later.TryLock())
	waiting.Unlock()

	release()
	releaseLater()
	release()
	req.Equal(1, r.Sweep(time.Minute))
	req.Zero(r.Len())
}

func TestRegistry_SweepDropsUnreferencedGuardWithoutTopic(t *testing.T) {
	r := NewRegistry(nil)
	_, release := r.Guard("never-subscribed")
	release()
	_, releaseHeld := r.Guard("still-held")
	defer releaseHeld()

	r.Sweep(time.Minute)

	r.guardsMu.Lock()
	defer r.guardsMu.Unlock()
	require.NotContains(t, r.guards, ID("never-subscribed"))
	require.Contains(t, r.guards, ID("still-held"))
}
