package chat

import (
	"time"

	"github.com/google/uuid"
)

// Room is a conversation inside a company. Direct rooms have no name and
// exactly two members.
type Room struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      *string   `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a room participant with the profile fields the chat list shows.
type Member struct {
	UserID     uuid.UUID  `json:"user_id"`
	Email      string     `json:"email"`
	FullName   *string    `json:"full_name"`
	AvatarURL  *string    `json:"avatar_url"`
	LastReadAt *time.Time `json:"last_read_at"`
}

type Message struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoomSummary is one entry of the room list.
type RoomSummary struct {
	Room
	Members     []Member `json:"members"`
	LastMessage *Message `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}

// LastActivity is the time of the newest message, or the room creation time
// for rooms without messages.
func (s RoomSummary) LastActivity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}

// Event is pushed to WebSocket subscribers of a room.
type Event struct {
	Type    string    `json:"type"`
	RoomID  uuid.UUID `json:"room_id"`
	Message *Message  `json:"message,omitempty"`
}

const (
	EventMessageCreated = "message.created"
)
