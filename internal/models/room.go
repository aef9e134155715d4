package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRoomName is returned for names outside the room allow-list
var ErrInvalidRoomName = errors.New("invalid room name")

// RoomName is one of a fixed set of room names
type RoomName string

const (
	RoomLobby   RoomName = "Lobby"
	RoomGeneral RoomName = "General"
	RoomRandom  RoomName = "Random"
	RoomSupport RoomName = "Support"
)

// RoomNames lists every allowed room name in display order
var RoomNames = []RoomName{RoomLobby, RoomGeneral, RoomRandom, RoomSupport}

// ParseRoomName validates a raw name against the allow-list. Matching is case-sensitive.
func ParseRoomName(s string) (RoomName, error) {
	for _, n := range RoomNames {
		if string(n) == s {
			return n, nil
		}
	}
	return "", ErrInvalidRoomName
}

func (n RoomName) String() string { return string(n) }

type Room struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      RoomName  `json:"name" db:"name"`
	CreatedBy uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Role is a member's role inside a room
type Role string

const (
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleModerator, RoleMember:
		return Role(s), nil
	case "":
		return RoleMember, nil
	}
	return "", errors.New("invalid role")
}

type RoomMember struct {
	RoomID   uuid.UUID `json:"room_id" db:"room_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	Role     Role      `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

type JoinRoomRequest struct {
	Role string `json:"role,omitempty" binding:"omitempty,oneof=owner moderator member"`
}
