package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/models"
)

// DefaultMessageLimit is used when ListMessages.Limit is zero or negative.
const DefaultMessageLimit = 50

// Service orchestrates rooms, posting and the moderation workflow.
// It never retries: every failure is returned to the caller.
type Service struct {
	repo   ChatRepository
	limit  RateLimiter
	queue  ModerationQueue
	audit  AuditLog
	tx     Transactor
	clock  Clock
	ids    IDGenerator
	policy ModerationPolicy
	log    *slog.Logger
}

// Deps groups the collaborators of a Service. Tx, Clock, IDs, Policy and Log
// fall back to running without a transaction, SystemClock, UUIDGenerator,
// DefaultModerationPolicy and slog.Default when nil.
type Deps struct {
	Repo        ChatRepository
	RateLimiter RateLimiter
	Queue       ModerationQueue
	Audit       AuditLog
	Tx          Transactor
	Clock       Clock
	IDs         IDGenerator
	Policy      ModerationPolicy
	Log         *slog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:   d.Repo,
		limit:  d.RateLimiter,
		queue:  d.Queue,
		audit:  d.Audit,
		tx:     d.Tx,
		clock:  d.Clock,
		ids:    d.IDs,
		policy: d.Policy,
		log:    d.Log,
	}
	if s.tx == nil {
		s.tx = noTx{}
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.ids == nil {
		s.ids = UUIDGenerator{}
	}
	if s.policy == nil {
		s.policy = DefaultModerationPolicy
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

type CreateRoom struct {
	Name      models.RoomName
	CreatedBy uuid.UUID
}

// CreateRoom persists a room and makes its creator the owner.
// Duplicate names are left to the repository.
func (s *Service) CreateRoom(ctx context.Context, cmd CreateRoom) (*models.Room, error) {
	if _, err := models.ParseRoomName(string(cmd.Name)); err != nil {
		return nil, err
	}

	room := &models.Room{
		ID:        s.ids.NewRoomID(),
		Name:      cmd.Name,
		CreatedBy: cmd.CreatedBy,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if _, err := s.repo.AddMembership(ctx, room.ID, cmd.CreatedBy, models.RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to add room owner: %w", err)
	}
	if err := s.record(ctx, &room.ID, cmd.CreatedBy, models.AuditRoomCreate,
		models.MetaPair{Key: "room_id", Value: room.ID.String()},
	); err != nil {
		return nil, err
	}

	s.log.Info("room created", "room_id", room.ID, "name", room.Name)
	return room, nil
}

// JoinRoom grants membership. Role defaults to member when empty.
type JoinRoom struct {
	RoomID uuid.UUID
	UserID uuid.UUID
	Role   models.Role
}

// JoinRoom is idempotent: joining a room twice is not an error, and only the
// join that grants membership is audited.
func (s *Service) JoinRoom(ctx context.Context, cmd JoinRoom) error {
	role := cmd.Role
	if role == "" {
		role = models.RoleMember
	}
	if _, err := s.requireRoom(ctx, cmd.RoomID); err != nil {
		return err
	}
	added, err := s.repo.AddMembership(ctx, cmd.RoomID, cmd.UserID, role)
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	if !added {
		return nil
	}
	return s.record(ctx, &cmd.RoomID, cmd.UserID, models.AuditRoomJoin,
		models.MetaPair{Key: "role", Value: string(role)},
	)
}

// ListMessages reads a room's history. Limit defaults to DefaultMessageLimit.
type ListMessages struct {
	RoomID uuid.UUID
	UserID uuid.UUID
	Limit  int
}

func (s *Service) ListMessages(ctx context.Context, q ListMessages) ([]models.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if err := s.requireMember(ctx, q.RoomID, q.UserID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, q.RoomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

type PostMessage struct {
	RoomID   uuid.UUID
	UserID   uuid.UUID
	Body     string
	ClientID *string
}

// PostMessage checks membership, then the rate limit, then classifies and
// stores the message. Flagged messages start pending and are queued for review.
// A retry carrying a ClientID the poster already used in the room returns the
// stored message without counting against the rate limit or writing again.
func (s *Service) PostMessage(ctx context.Context, cmd PostMessage) (*models.Message, error) {
	body, err := models.NewMessageBody(cmd.Body)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, cmd.RoomID, cmd.UserID); err != nil {
		return nil, err
	}
	if prev, err := s.findByClientID(ctx, cmd); prev != nil || err != nil {
		return prev, err
	}
	if err := s.limit.Check(ctx, cmd.RoomID, cmd.UserID); err != nil {
		return nil, err
	}

	flagged := s.policy(body)
	status := models.StatusVisible
	if flagged {
		status = models.StatusPending
	}

	msg := &models.Message{
		ID:        s.ids.NewMessageID(),
		RoomID:    cmd.RoomID,
		UserID:    cmd.UserID,
		Body:      body,
		Status:    status,
		ClientID:  cmd.ClientID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, ErrDuplicateClientID) {
			// A concurrent retry won the insert.
			if prev, ferr := s.findByClientID(ctx, cmd); prev != nil || ferr != nil {
				return prev, ferr
			}
		}
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if flagged {
		if err := s.queue.Enqueue(ctx, msg.ID, models.AutoModerationReason); err != nil {
			return nil, fmt.Errorf("failed to enqueue message for moderation: %w", err)
		}
		s.log.Debug("message held for moderation", "message_id", msg.ID, "room_id", msg.RoomID)
	}

	if err := s.record(ctx, &cmd.RoomID, cmd.UserID, models.AuditMessagePost,
		models.MetaPair{Key: "message_id", Value: msg.ID.String()},
		models.MetaPair{Key: "status", Value: string(status)},
	); err != nil {
		return nil, err
	}
	return msg, nil
}

type ModerateMessage struct {
	MessageID  uuid.UUID
	ReviewerID uuid.UUID
	Decision   models.Decision
	Reason     *string
}

// ModerateMessage applies a reviewer decision regardless of the message's
// current status and closes its queue entry.
func (s *Service) ModerateMessage(ctx context.Context, cmd ModerateMessage) (*models.Message, error) {
	if _, err := models.ParseDecision(string(cmd.Decision)); err != nil {
		return nil, err
	}
	var msg *models.Message
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.applyDecision(ctx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// applyDecision updates the message, closes its queue entry and audits the
// decision. ModerateMessage runs it in one transaction.
func (s *Service) applyDecision(ctx context.Context, cmd ModerateMessage) (*models.Message, error) {
	msg, err := s.repo.FindMessage(ctx, cmd.MessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}

	status := cmd.Decision.Status()
	if err := s.repo.UpdateMessageStatus(ctx, msg.ID, status); err != nil {
		return nil, fmt.Errorf("failed to update message status: %w", err)
	}
	if err := s.queue.Complete(ctx, msg.ID, cmd.ReviewerID, cmd.Decision, cmd.Reason); err != nil {
		return nil, fmt.Errorf("failed to complete moderation: %w", err)
	}

	reason := ""
	if cmd.Reason != nil {
		reason = *cmd.Reason
	}
	if err := s.record(ctx, &msg.RoomID, cmd.ReviewerID, models.AuditMessageModerate,
		models.MetaPair{Key: "message_id", Value: msg.ID.String()},
		models.MetaPair{Key: "decision", Value: string(cmd.Decision)},
		models.MetaPair{Key: "reason", Value: reason},
	); err != nil {
		return nil, err
	}

	msg.Status = status
	return msg, nil
}

func (s *Service) ListModerationQueue(ctx context.Context, limit int) ([]models.ModerationItem, error) {
	items, err := s.queue.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation queue: %w", err)
	}
	return items, nil
}

// FindRoomByName returns nil when no room carries the name.
func (s *Service) FindRoomByName(ctx context.Context, name models.RoomName) (*models.Room, error) {
	room, err := s.repo.FindRoomByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find room by name: %w", err)
	}
	return room, nil
}

// EnsureRoom returns the room with the given name, creating it if needed.
func (s *Service) EnsureRoom(ctx context.Context, name models.RoomName, createdBy uuid.UUID) (*models.Room, error) {
	room, err := s.FindRoomByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}
	return s.CreateRoom(ctx, CreateRoom{Name: name, CreatedBy: createdBy})
}

func (s *Service) findByClientID(ctx context.Context, cmd PostMessage) (*models.Message, error) {
	if cmd.ClientID == nil {
		return nil, nil
	}
	msg, err := s.repo.FindMessageByClientID(ctx, cmd.RoomID, cmd.UserID, *cmd.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find message by client id: %w", err)
	}
	return msg, nil
}

func (s *Service) requireRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room, err := s.repo.FindRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *Service) requireMember(ctx context.Context, roomID, userID uuid.UUID) error {
	if _, err := s.requireRoom(ctx, roomID); err != nil {
		return err
	}
	ok, err := s.repo.IsMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func (s *Service) record(ctx context.Context, roomID *uuid.UUID, actor uuid.UUID, action models.AuditAction, meta ...models.MetaPair) error {
	entry := models.AuditEntry{
		RoomID:      roomID,
		ActorID:     actor,
		Action:      action,
		Metadata:    meta,
		TimestampMS: unixMillis(s.clock),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// unixMillis is 0 for clocks before the Unix epoch.
func unixMillis(c Clock) int64 {
	ms := c.Now().UnixMilli()
	if ms < 0 {
		return 0
	}
	return ms
}
