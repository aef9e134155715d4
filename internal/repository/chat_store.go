package repository

import (
	"github.com/tullo/livechat/internal/chat"
	"github.com/tullo/livechat/internal/database"
)

// ChatStore combines the room and message repositories into the chat service's repository.
type ChatStore struct {
	*RoomRepository
	*MessageRepository
}

func NewChatStore(db *database.DB) *ChatStore {
	return &ChatStore{
		RoomRepository:    NewRoomRepository(db),
		MessageRepository: NewMessageRepository(db),
	}
}

var (
	_ chat.ChatRepository  = (*ChatStore)(nil)
	_ chat.ModerationQueue = (*ModerationRepository)(nil)
	_ chat.AuditLog        = (*AuditRepository)(nil)
	_ chat.RateLimiter     = (*RateLimitRepository)(nil)
)
