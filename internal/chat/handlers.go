package chat

import (
	"net/http"
	"strconv"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func parseRoomID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	roomID, err := uuid.Parse(chi.URLParam(r, "room_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid room ID")
		return uuid.Nil, false
	}
	return roomID, true
}

// HandleListRooms handles GET /api/v1/companies/{company_id}/chat/rooms
func HandleListRooms(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, ok := companies.ParseCompanyID(w, r)
		if !ok {
			return
		}

		rooms, err := service.ListRooms(r.Context(), auth.GetUserID(r.Context()), companyID)
		if err != nil {
			apperrors.WriteFromError(w, r, "chat.list_rooms", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"rooms": rooms,
		})
	}
}

// DirectRoomRequest is the body of POST .../chat/rooms/direct
type DirectRoomRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// HandleCreateDirectRoom handles POST /api/v1/companies/{company_id}/chat/rooms/direct
func HandleCreateDirectRoom(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)
		companyID, ok := companies.ParseCompanyID(w, r)
		if !ok {
			return
		}

		var req DirectRoomRequest
		if err := apperrors.DecodeJSON(r, &req); err != nil || req.UserID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "user_id is required")
			return
		}

		room, created, err := service.CreateDirectRoom(ctx, userID, companyID, req.UserID)
		if err != nil {
			apperrors.WriteFromError(w, r, "chat.create_direct", err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
			if err := auditor.LogChatRoomCreated(ctx, companyID, room.ID, userID, false); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, status, map[string]any{
			"room": room,
		})
	}
}

// GroupRoomRequest is the body of POST .../chat/rooms/group
type GroupRoomRequest struct {
	Name      string      `json:"name"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

// HandleCreateGroupRoom handles POST /api/v1/companies/{company_id}/chat/rooms/group
func HandleCreateGroupRoom(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)
		companyID, ok := companies.ParseCompanyID(w, r)
		if !ok {
			return
		}

		var req GroupRoomRequest
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		room, err := service.CreateGroupRoom(ctx, userID, companyID, req.Name, req.MemberIDs)
		if err != nil {
			apperrors.WriteFromError(w, r, "chat.create_group", err)
			return
		}

		if err := auditor.LogChatRoomCreated(ctx, companyID, room.ID, userID, true); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"room": room,
		})
	}
}

// HandleListMessages handles GET /api/v1/chat/rooms/{room_id}/messages?limit=
func HandleListMessages(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := parseRoomID(w, r)
		if !ok {
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid limit")
				return
			}
			limit = parsed
		}

		messages, err := service.ListMessages(r.Context(), auth.GetUserID(r.Context()), roomID, limit)
		if err != nil {
			apperrors.WriteFromError(w, r, "chat.list_messages", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"messages": messages,
		})
	}
}

// SendMessageRequest is the body of POST .../messages
type SendMessageRequest struct {
	Content string `json:"content"`
}

// HandleSendMessage handles POST /api/v1/chat/rooms/{room_id}/messages
func HandleSendMessage(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := parseRoomID(w, r)
		if !ok {
			return
		}

		var req SendMessageRequest
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		message, err := service.SendMessage(r.Context(), auth.GetUserID(r.Context()), roomID, req.Content)
		if err != nil {
			apperrors.WriteFromError(w, r, "chat.send_message", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"message": message,
		})
	}
}

// HandleMarkRead handles POST /api/v1/chat/rooms/{room_id}/read
func HandleMarkRead(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := parseRoomID(w, r)
		if !ok {
			return
		}

		if err := service.MarkRead(r.Context(), auth.GetUserID(r.Context()), roomID); err != nil {
			apperrors.WriteFromError(w, r, "chat.mark_read", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleWebSocket handles GET /api/v1/chat/rooms/{room_id}/ws
func HandleWebSocket(service *Service, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := parseRoomID(w, r)
		if !ok {
			return
		}
		userID := auth.GetUserID(r.Context())

		if _, err := service.RequireMember(r.Context(), roomID, userID); err != nil {
			apperrors.WriteFromError(w, r, "chat.ws", err)
			return
		}

		if err := hub.Serve(w, r, roomID, userID); err != nil {
			log.Warn().Err(err).Str("room_id", roomID.String()).Msg("Failed to upgrade chat WebSocket")
		}
	}
}
