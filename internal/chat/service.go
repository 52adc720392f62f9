package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/aliuyar1234/pmdash/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxMessageLength bounds a message body in characters.
const MaxMessageLength = 4000

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

var (
	ErrRoomNotFound       = apperrors.NotFound("Chat room not found")
	ErrEmptyMessage       = apperrors.Validation("Message cannot be empty")
	ErrMessageTooLong     = apperrors.Validation("Message must be at most 4000 characters")
	ErrDirectWithSelf     = apperrors.Validation("You cannot start a conversation with yourself")
	ErrRecipientNotMember = apperrors.Validation("User is not a member of this company")
	ErrInvalidRoomName    = apperrors.Validation("Group name must be between 1 and 200 characters")
	ErrGroupNeedsMembers  = apperrors.Validation("A group needs at least one other member")
)

// Service implements chat rooms and messages.
type Service struct {
	pool *pgxpool.Pool
	hub  Broadcaster
}

// NewService creates a chat service publishing events through hub.
func NewService(pool *pgxpool.Pool, hub Broadcaster) *Service {
	return &Service{pool: pool, hub: hub}
}

// validateContent trims content and checks its length.
func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return content, nil
}

// groupMembers returns memberIDs without duplicates, with creator first.
func groupMembers(creator uuid.UUID, memberIDs []uuid.UUID) []uuid.UUID {
	out := []uuid.UUID{creator}
	seen := map[uuid.UUID]bool{creator: true}
	for _, id := range memberIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultMessageLimit
	}
	if limit > maxMessageLimit {
		return maxMessageLimit
	}
	return limit
}

// sortByActivity orders rooms by last activity, newest first.
func sortByActivity(rooms []RoomSummary) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].LastActivity().After(rooms[j].LastActivity())
	})
}

// requireRoomMember returns the room if userID belongs to it and is still a
// member of the room's company.
func requireRoomMember(ctx context.Context, q db.DBTX, roomID, userID uuid.UUID) (*Room, error) {
	var room Room
	err := q.QueryRow(ctx, `
		SELECT r.id, r.company_id, r.name, r.is_group, r.created_by, r.created_at
		FROM chat_rooms r
		INNER JOIN chat_room_members m ON m.chat_room_id = r.id
		INNER JOIN company_members cm ON cm.company_id = r.company_id AND cm.user_id = m.user_id
		WHERE r.id = $1 AND m.user_id = $2
	`, roomID, userID).Scan(&room.ID, &room.CompanyID, &room.Name, &room.IsGroup, &room.CreatedBy, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to load chat room: %w", err)
	}
	return &room, nil
}

// RequireMember checks that userID may read roomID.
func (s *Service) RequireMember(ctx context.Context, roomID, userID uuid.UUID) (*Room, error) {
	return requireRoomMember(ctx, s.pool, roomID, userID)
}

// ListRooms returns userID's rooms in companyID with members, the last
// message and the unread count, most recently active first.
func (s *Service) ListRooms(ctx context.Context, userID, companyID uuid.UUID) ([]RoomSummary, error) {
	if _, err := companies.MemberRole(ctx, s.pool, companyID, userID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.company_id, r.name, r.is_group, r.created_by, r.created_at,
		       lm.id, lm.sender_id, lm.content, lm.created_at, lm.updated_at,
		       (SELECT COUNT(*) FROM messages m
		         WHERE m.chat_room_id = r.id
		           AND m.sender_id <> $1
		           AND (me.last_read_at IS NULL OR m.created_at > me.last_read_at)) AS unread
		FROM chat_rooms r
		INNER JOIN chat_room_members me ON me.chat_room_id = r.id AND me.user_id = $1
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, created_at, updated_at
			FROM messages
			WHERE chat_room_id = r.id
			ORDER BY created_at DESC
			LIMIT 1
		) lm ON TRUE
		WHERE r.company_id = $2
	`, userID, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat rooms: %w", err)
	}
	defer rows.Close()

	rooms := []RoomSummary{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var (
			rs        RoomSummary
			msgID     *uuid.UUID
			senderID  *uuid.UUID
			content   *string
			createdAt *time.Time
			updatedAt *time.Time
		)
		if err := rows.Scan(
			&rs.ID, &rs.CompanyID, &rs.Name, &rs.IsGroup, &rs.CreatedBy, &rs.CreatedAt,
			&msgID, &senderID, &content, &createdAt, &updatedAt,
			&rs.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat room: %w", err)
		}
		if msgID != nil {
			rs.LastMessage = &Message{
				ID:        *msgID,
				RoomID:    rs.ID,
				SenderID:  *senderID,
				Content:   *content,
				CreatedAt: *createdAt,
				UpdatedAt: *updatedAt,
			}
		}
		rs.Members = []Member{}
		index[rs.ID] = len(rooms)
		rooms = append(rooms, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat room rows: %w", err)
	}
	if len(rooms) == 0 {
		return rooms, nil
	}

	ids := make([]uuid.UUID, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	memberRows, err := s.pool.Query(ctx, `
		SELECT m.chat_room_id, m.user_id, u.email, p.full_name, p.avatar_url, m.last_read_at
		FROM chat_room_members m
		INNER JOIN users u ON u.id = m.user_id
		LEFT JOIN profiles p ON p.id = m.user_id
		WHERE m.chat_room_id = ANY($1)
		ORDER BY m.joined_at ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat room members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var roomID uuid.UUID
		var m Member
		if err := memberRows.Scan(&roomID, &m.UserID, &m.Email, &m.FullName, &m.AvatarURL, &m.LastReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat room member: %w", err)
		}
		if i, ok := index[roomID]; ok {
			rooms[i].Members = append(rooms[i].Members, m)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat room member rows: %w", err)
	}

	sortByActivity(rooms)
	return rooms, nil
}

// CreateDirectRoom returns the direct room between userID and otherID,
// creating it when none exists. created reports whether a row was inserted.
func (s *Service) CreateDirectRoom(ctx context.Context, userID, companyID, otherID uuid.UUID) (room *Room, created bool, err error) {
	if userID == otherID {
		return nil, false, ErrDirectWithSelf
	}

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := companies.MemberRole(ctx, tx, companyID, userID); err != nil {
			return err
		}
		if _, err := companies.MemberRole(ctx, tx, companyID, otherID); err != nil {
			if errors.Is(err, companies.ErrCompanyNotFound) {
				return ErrRecipientNotMember
			}
			return err
		}

		var existing Room
		err := tx.QueryRow(ctx, `
			SELECT r.id, r.company_id, r.name, r.is_group, r.created_by, r.created_at
			FROM chat_rooms r
			WHERE r.company_id = $1
			  AND NOT r.is_group
			  AND EXISTS (SELECT 1 FROM chat_room_members WHERE chat_room_id = r.id AND user_id = $2)
			  AND EXISTS (SELECT 1 FROM chat_room_members WHERE chat_room_id = r.id AND user_id = $3)
			  AND (SELECT COUNT(*) FROM chat_room_members WHERE chat_room_id = r.id) = 2
			ORDER BY r.created_at ASC
			LIMIT 1
		`, companyID, userID, otherID).Scan(
			&existing.ID, &existing.CompanyID, &existing.Name, &existing.IsGroup, &existing.CreatedBy, &existing.CreatedAt,
		)
		if err == nil {
			room = &existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to find direct room: %w", err)
		}

		room, err = insertRoom(ctx, tx, companyID, userID, nil, false, []uuid.UUID{userID, otherID})
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return room, created, nil
}

// CreateGroupRoom creates a named room. Every member must belong to the
// company; the creator is always included.
func (s *Service) CreateGroupRoom(ctx context.Context, userID, companyID uuid.UUID, name string, memberIDs []uuid.UUID) (*Room, error) {
	if err := validation.ValidateName(name, 1); err != nil {
		return nil, ErrInvalidRoomName
	}
	members := groupMembers(userID, memberIDs)
	if len(members) < 2 {
		return nil, ErrGroupNeedsMembers
	}
	trimmed := strings.TrimSpace(name)

	var room *Room
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := companies.MemberRole(ctx, tx, companyID, userID); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM company_members
			WHERE company_id = $1 AND user_id = ANY($2)
		`, companyID, members).Scan(&count); err != nil {
			return fmt.Errorf("failed to check group members: %w", err)
		}
		if count != len(members) {
			return ErrRecipientNotMember
		}

		var err error
		room, err = insertRoom(ctx, tx, companyID, userID, &trimmed, true, members)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func insertRoom(ctx context.Context, tx pgx.Tx, companyID, creator uuid.UUID, name *string, isGroup bool, members []uuid.UUID) (*Room, error) {
	var room Room
	err := tx.QueryRow(ctx, `
		INSERT INTO chat_rooms (company_id, name, is_group, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, company_id, name, is_group, created_by, created_at
	`, companyID, name, isGroup, creator).Scan(
		&room.ID, &room.CompanyID, &room.Name, &room.IsGroup, &room.CreatedBy, &room.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat room: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_room_members (chat_room_id, user_id)
		SELECT $1, unnest($2::uuid[])
	`, room.ID, members); err != nil {
		return nil, fmt.Errorf("failed to add chat room members: %w", err)
	}
	return &room, nil
}

// ListMessages returns up to limit of the newest messages in chronological
// order and marks the room read for userID.
func (s *Service) ListMessages(ctx context.Context, userID, roomID uuid.UUID, limit int) ([]Message, error) {
	if _, err := s.RequireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_room_id, sender_id, content, created_at, updated_at
		FROM (
			SELECT id, chat_room_id, sender_id, content, created_at, updated_at
			FROM messages
			WHERE chat_room_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) newest
		ORDER BY created_at ASC
	`, roomID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	if err := s.MarkRead(ctx, userID, roomID); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage stores a message and pushes it to the room's subscribers.
func (s *Service) SendMessage(ctx context.Context, userID, roomID uuid.UUID, content string) (*Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := s.RequireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	var m Message
	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages (chat_room_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, chat_room_id, sender_id, content, created_at, updated_at
	`, roomID, userID, content).Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if s.hub != nil {
		s.hub.Broadcast(roomID, Event{Type: EventMessageCreated, RoomID: roomID, Message: &m})
	}
	return &m, nil
}

// MarkRead sets userID's read marker for roomID to now.
func (s *Service) MarkRead(ctx context.Context, userID, roomID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE chat_room_members m SET last_read_at = NOW()
		FROM chat_rooms r
		INNER JOIN company_members cm ON cm.company_id = r.company_id
		WHERE r.id = m.chat_room_id
		  AND m.chat_room_id = $1 AND m.user_id = $2 AND cm.user_id = $2
	`, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark room read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}
