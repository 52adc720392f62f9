package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/invitations"
	"github.com/aliuyar1234/pmdash/internal/retention"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestE2E_InvitationLifecycle(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool)

	owner := signup(t, srv.URL, "owner@example.com", "Olive Owner")
	invitee := signup(t, srv.URL, "invitee@example.com", "Ian Invitee")
	companyID := owner.createCompany("Acme")

	created, resend := owner.invite(companyID, "Invitee@Example.com", "member", http.StatusCreated)
	require.False(t, resend)
	require.Equal(t, "invitee@example.com", created.Email)
	require.Equal(t, "pending", created.Status)
	require.Len(t, created.Token, invitations.TokenLength)
	require.Equal(t, "http://localhost/invitations/"+created.Token, created.InvitationLink)

	again, resend := owner.invite(companyID, "invitee@example.com", "member", http.StatusOK)
	require.True(t, resend)
	require.Equal(t, created.ID, again.ID)

	var pending struct {
		Invitations []invitationView `json:"invitations"`
	}
	owner.decode(owner.expect(http.MethodGet, "/api/v1/companies/"+companyID.String()+"/invitations", http.StatusOK, nil), &pending)
	require.Len(t, pending.Invitations, 1)

	var resent struct {
		Invitation invitationView `json:"invitation"`
	}
	owner.decode(owner.expect(http.MethodPut, "/api/v1/invitations", http.StatusOK, map[string]any{
		"invitationId": created.ID.String(),
	}), &resent)
	require.Equal(t, created.ID, resent.Invitation.ID)
	require.NotEqual(t, created.Token, resent.Invitation.Token)

	// The rotated token replaces the old one.
	invitee.expectError(http.MethodGet, "/api/v1/invitations/"+created.Token, http.StatusNotFound, nil)

	var preview struct {
		Company struct {
			ID   uuid.UUID `json:"id"`
			Name string    `json:"name"`
		} `json:"company"`
		InviterName string `json:"inviter_name"`
	}
	invitee.decode(invitee.expect(http.MethodGet, "/api/v1/invitations/"+resent.Invitation.Token, http.StatusOK, nil), &preview)
	require.Equal(t, companyID, preview.Company.ID)
	require.Equal(t, "Acme", preview.Company.Name)
	require.Equal(t, "Olive Owner", preview.InviterName)

	// Someone else cannot redeem it.
	outsider := signup(t, srv.URL, "outsider@example.com", "Otto Outsider")
	outsider.expectError(http.MethodPost, "/api/v1/invitations/"+resent.Invitation.Token+"/accept", http.StatusForbidden, nil)

	var accepted struct {
		CompanyID uuid.UUID `json:"companyId"`
		Role      string    `json:"role"`
	}
	invitee.decode(invitee.expect(http.MethodPost, "/api/v1/invitations/"+resent.Invitation.Token+"/accept", http.StatusOK, nil), &accepted)
	require.Equal(t, companyID, accepted.CompanyID)
	require.Equal(t, "member", accepted.Role)

	errEnv := invitee.expectError(http.MethodPost, "/api/v1/invitations/"+resent.Invitation.Token+"/accept", http.StatusConflict, nil)
	require.Equal(t, "conflict", errEnv.Error.Code)

	var members struct {
		Members []struct {
			UserID uuid.UUID `json:"user_id"`
			Role   string    `json:"role"`
		} `json:"members"`
	}
	owner.decode(owner.expect(http.MethodGet, "/api/v1/companies/"+companyID.String()+"/members", http.StatusOK, nil), &members)
	require.Len(t, members.Members, 2)

	// Inviting an existing member is rejected.
	errEnv = owner.expectError(http.MethodPost, "/api/v1/invitations", http.StatusConflict, map[string]any{
		"email":     "invitee@example.com",
		"role":      "member",
		"companyId": companyID,
	})
	require.Equal(t, "This email is already a member of the company.", errEnv.Error.Message)

	// Members cannot invite.
	invitee.expectError(http.MethodPost, "/api/v1/invitations", http.StatusForbidden, map[string]any{
		"email":     "friend@example.com",
		"role":      "member",
		"companyId": companyID,
	})

	actions := owner.auditActions(companyID)
	for _, action := range []string{audit.EventInvitationCreated, audit.EventInvitationResent, audit.EventInvitationAccepted} {
		require.True(t, actions[action], "missing %s audit event", action)
	}
}

func TestE2E_InvitationCancelThenResendRejected(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool)

	owner := signup(t, srv.URL, "owner@example.com", "Olive Owner")
	companyID := owner.createCompany("Acme")

	inv, _ := owner.invite(companyID, "later@example.com", "manager", http.StatusCreated)

	// The legacy unversioned path serves the same handlers.
	owner.expect(http.MethodDelete, "/invitations?id="+inv.ID.String(), http.StatusOK, nil)

	errEnv := owner.expectError(http.MethodDelete, "/api/v1/invitations?id="+inv.ID.String(), http.StatusBadRequest, nil)
	require.Equal(t, "This invitation cannot be canceled because it is already canceled.", errEnv.Error.Message)

	errEnv = owner.expectError(http.MethodPut, "/invitations", http.StatusConflict, map[string]any{
		"invitationId": inv.ID.String(),
	})
	require.Equal(t, "This invitation cannot be resent because it is already canceled.", errEnv.Error.Message)

	owner.expectError(http.MethodPut, "/api/v1/invitations", http.StatusNotFound, map[string]any{
		"invitationId": uuid.NewString(),
	})

	// A canceled invitation does not block a fresh one.
	fresh, resend := owner.invite(companyID, "later@example.com", "manager", http.StatusCreated)
	require.False(t, resend)
	require.NotEqual(t, inv.ID, fresh.ID)

	require.True(t, owner.auditActions(companyID)[audit.EventInvitationCanceled])
}

func TestE2E_InvitationRequiresSession(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool)

	client, csrf := newCSRFClient(t, srv.URL)
	anon := &apiUser{t: t, client: client, csrf: csrf, base: srv.URL}

	errEnv := anon.expectError(http.MethodPost, "/api/v1/invitations", http.StatusUnauthorized, map[string]any{
		"email":     "someone@example.com",
		"role":      "member",
		"companyId": uuid.New(),
	})
	require.Equal(t, "Unauthorized. Please log in to send invitations.", errEnv.Error.Message)

	// The HTML page redirects to the login form.
	noRedirect := &http.Client{
		Jar: client.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := noRedirect.Get(srv.URL + "/invitations/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestIntegration_RetentionPurgesFinishedInvitations(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool)

	owner := signup(t, srv.URL, "owner@example.com", "Olive Owner")
	companyID := owner.createCompany("Acme")

	canceled, _ := owner.invite(companyID, "a@example.com", "member", http.StatusCreated)
	owner.expect(http.MethodDelete, "/api/v1/invitations?id="+canceled.ID.String(), http.StatusOK, nil)
	live, _ := owner.invite(companyID, "b@example.com", "member", http.StatusCreated)

	ctx := context.Background()
	_, err := pool.Exec(ctx, `UPDATE invitations SET updated_at = $2 WHERE id = $1`,
		canceled.ID, time.Now().Add(-60*24*time.Hour))
	require.NoError(t, err)

	job := retention.NewJob(pool, audit.NewWriter(pool), 30)
	require.NoError(t, job.Run(ctx))

	var remaining []uuid.UUID
	rows, err := pool.Query(ctx, `SELECT id FROM invitations WHERE company_id = $1`, companyID)
	require.NoError(t, err)
	for rows.Next() {
		var id uuid.UUID
		require.NoError(t, rows.Scan(&id))
		remaining = append(remaining, id)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []uuid.UUID{live.ID}, remaining)
}
