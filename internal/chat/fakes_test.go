package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/models"
)

type memRepo struct {
	mu          sync.Mutex
	rooms       map[uuid.UUID]models.Room
	messages    map[uuid.UUID]models.Message
	members     map[[2]uuid.UUID]models.Role
	insertCalls int

	// missClientLookup makes FindMessageByClientID miss until an insert
	// conflicts, as when a concurrent retry inserts first.
	missClientLookup bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		rooms:    make(map[uuid.UUID]models.Room),
		messages: make(map[uuid.UUID]models.Message),
		members:  make(map[[2]uuid.UUID]models.Role),
	}
}

func (r *memRepo) CreateRoom(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = *room
	return nil
}

func (r *memRepo) FindRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

func (r *memRepo) FindRoomByName(_ context.Context, name models.RoomName) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.Name == name {
			return &room, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ListMessages(_ context.Context, roomID uuid.UUID, limit int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Message{}
	for _, m := range r.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) FindMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *memRepo) FindMessageByClientID(_ context.Context, roomID, userID uuid.UUID, clientID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missClientLookup {
		return nil, nil
	}
	return r.byClientID(roomID, userID, clientID), nil
}

func (r *memRepo) byClientID(roomID, userID uuid.UUID, clientID string) *models.Message {
	for _, m := range r.messages {
		if m.RoomID == roomID && m.UserID == userID && m.ClientID != nil && *m.ClientID == clientID {
			return &m
		}
	}
	return nil
}

func (r *memRepo) InsertMessage(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if msg.ClientID != nil && r.byClientID(msg.RoomID, msg.UserID, *msg.ClientID) != nil {
		r.missClientLookup = false
		return ErrDuplicateClientID
	}
	r.messages[msg.ID] = *msg
	return nil
}

func (r *memRepo) AddMembership(_ context.Context, roomID, userID uuid.UUID, role models.Role) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]uuid.UUID{roomID, userID}
	if _, ok := r.members[key]; ok {
		return false, nil
	}
	r.members[key] = role
	return true, nil
}

func (r *memRepo) IsMember(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[[2]uuid.UUID{roomID, userID}]
	return ok, nil
}

func (r *memRepo) UpdateMessageStatus(_ context.Context, id uuid.UUID, status models.MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.messages[id]
	m.Status = status
	r.messages[id] = m
	return nil
}

func (r *memRepo) membershipCount(roomID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.members {
		if k[0] == roomID {
			n++
		}
	}
	return n
}

type fakeLimiter struct {
	mu     sync.Mutex
	calls  int
	reject bool
}

func (l *fakeLimiter) Check(context.Context, uuid.UUID, uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.reject {
		return ErrRateLimited
	}
	return nil
}

type completion struct {
	reviewer uuid.UUID
	decision models.Decision
	reason   *string
	inTx     bool
}

type fakeQueue struct {
	mu           sync.Mutex
	reasons      map[uuid.UUID]string
	order        []uuid.UUID
	completed    map[uuid.UUID]completion
	enqueues     int
	failComplete error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{reasons: make(map[uuid.UUID]string), completed: make(map[uuid.UUID]completion)}
}

func (q *fakeQueue) Enqueue(_ context.Context, id uuid.UUID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueues++
	q.reasons[id] = reason
	q.order = append(q.order, id)
	return nil
}

func (q *fakeQueue) ListPending(_ context.Context, limit int) ([]models.ModerationItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []models.ModerationItem{}
	for _, id := range q.order {
		if _, done := q.completed[id]; done {
			continue
		}
		out = append(out, models.ModerationItem{MessageID: id, Reason: q.reasons[id]})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (q *fakeQueue) Complete(ctx context.Context, id, reviewer uuid.UUID, d models.Decision, reason *string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failComplete != nil {
		return q.failComplete
	}
	_, inTx := ctx.Value(txKey{}).(bool)
	q.completed[id] = completion{reviewer: reviewer, decision: d, reason: reason, inTx: inTx}
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (a *fakeAudit) Record(_ context.Context, e models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeAudit) actions() []models.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// stepClock advances one millisecond on every read so message order is deterministic.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type txKey struct{}

// fakeTx marks the ctx it hands to fn and records each outcome.
type fakeTx struct {
	mu      sync.Mutex
	results []error
}

func (tx *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(context.WithValue(ctx, txKey{}, true))
	tx.mu.Lock()
	tx.results = append(tx.results, err)
	tx.mu.Unlock()
	return err
}
