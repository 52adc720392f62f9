package audit

import (
	"context"
	"encoding/json"

	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup         = "user.signup"
	EventLoginFailed        = "auth.login_failed"
	EventProfileUpdated     = "profile.updated"
	EventCompanyCreated     = "company.created"
	EventInvitationCreated  = "invitation.created"
	EventInvitationResent   = "invitation.resent"
	EventInvitationCanceled = "invitation.canceled"
	EventInvitationAccepted = "invitation.accepted"
	EventMemberRoleUpdated  = "member.role_updated"
	EventMemberRemoved      = "member.removed"
	EventProjectCreated     = "project.created"
	EventProjectUpdated     = "project.updated"
	EventProjectDeleted     = "project.deleted"
	EventTaskCreated        = "task.created"
	EventTaskUpdated        = "task.updated"
	EventTaskDeleted        = "task.deleted"
	EventChatRoomCreated    = "chat.room_created"
	EventInvitationsPurged  = "retention.invitations_purged"
)

// Writer appends audit log entries.
type Writer struct {
	db db.DBTX
}

func NewWriter(q db.DBTX) *Writer {
	return &Writer{db: q}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	CompanyID   *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	_, err := w.db.Exec(ctx, `
		INSERT INTO audit_log (company_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4)
	`, toNullUUID(params.CompanyID), toNullUUID(params.ActorUserID), params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("company_id", params.CompanyID).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogUserSignup(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserSignup,
		Meta:        map[string]interface{}{"email": email},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]interface{}{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogProfileUpdated(ctx context.Context, userID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventProfileUpdated,
	})
}

func (w *Writer) LogCompanyCreated(ctx context.Context, companyID, userID uuid.UUID, name string) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &userID,
		Action:      EventCompanyCreated,
		Meta:        map[string]interface{}{"name": name},
	})
}

func (w *Writer) LogInvitationCreated(ctx context.Context, companyID, actorUserID, invitationID uuid.UUID, email, role string) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &actorUserID,
		Action:      EventInvitationCreated,
		Meta: map[string]interface{}{
			"invitation_id": invitationID.String(),
			"email":         email,
			"role":          role,
		},
	})
}

func (w *Writer) LogInvitationResent(ctx context.Context, companyID, actorUserID, invitationID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &actorUserID,
		Action:      EventInvitationResent,
		Meta:        map[string]interface{}{"invitation_id": invitationID.String()},
	})
}

func (w *Writer) LogInvitationCanceled(ctx context.Context, companyID, actorUserID, invitationID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &actorUserID,
		Action:      EventInvitationCanceled,
		Meta:        map[string]interface{}{"invitation_id": invitationID.String()},
	})
}

func (w *Writer) LogInvitationAccepted(ctx context.Context, companyID, actorUserID, invitationID uuid.UUID, role string) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &actorUserID,
		Action:      EventInvitationAccepted,
		Meta: map[string]interface{}{
			"invitation_id": invitationID.String(),
			"role":          role,
		},
	})
}

func (w *Writer) LogMemberRoleUpdated(ctx context.Context, companyID, actorUserID, targetUserID uuid.UUID, previousRole, newRole string) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &actorUserID,
		Action:      EventMemberRoleUpdated,
		Meta: map[string]interface{}{
			"target_user_id": targetUserID.String(),
			"previous_role":  previousRole,
			"new_role":       newRole,
		},
	})
}

func (w *Writer) LogMemberRemoved(ctx context.Context, companyID, actorUserID, targetUserID uuid.UUID, removedRole string) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &actorUserID,
		Action:      EventMemberRemoved,
		Meta: map[string]interface{}{
			"target_user_id": targetUserID.String(),
			"role":           removedRole,
		},
	})
}

// LogProjectEvent records a project create/update/delete.
func (w *Writer) LogProjectEvent(ctx context.Context, action string, companyID, projectID, userID uuid.UUID, name string) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &userID,
		Action:      action,
		Meta: map[string]interface{}{
			"project_id": projectID.String(),
			"name":       name,
		},
	})
}

// LogTaskEvent records a task create/update/delete.
func (w *Writer) LogTaskEvent(ctx context.Context, action string, companyID, taskID, userID uuid.UUID, title string) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &userID,
		Action:      action,
		Meta: map[string]interface{}{
			"task_id": taskID.String(),
			"title":   title,
		},
	})
}

func (w *Writer) LogChatRoomCreated(ctx context.Context, companyID, roomID, userID uuid.UUID, isGroup bool) error {
	return w.Log(ctx, LogParams{
		CompanyID:   &companyID,
		ActorUserID: &userID,
		Action:      EventChatRoomCreated,
		Meta: map[string]interface{}{
			"room_id":  roomID.String(),
			"is_group": isGroup,
		},
	})
}

func (w *Writer) LogInvitationsPurged(ctx context.Context, deleted int64, retentionDays int) error {
	return w.Log(ctx, LogParams{
		Action: EventInvitationsPurged,
		Meta: map[string]interface{}{
			"deleted":        deleted,
			"retention_days": retentionDays,
		},
	})
}
