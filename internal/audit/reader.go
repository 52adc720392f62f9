package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Reader lists audit events for the company audit page.
type Reader struct {
	db db.DBTX
}

func NewReader(q db.DBTX) *Reader {
	return &Reader{db: q}
}

// Event is one audit row joined with the actor's email.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Action      string         `json:"action"`
	CompanyID   uuid.UUID      `json:"company_id"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty"`
	ActorEmail  string         `json:"actor_email,omitempty"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Query selects a page of a company's audit log, newest first.
type Query struct {
	CompanyID uuid.UUID
	// Action keeps only events with this action, or with this prefix when it
	// ends in ".", e.g. "invitation.".
	Action string
	// Before pages backwards from an earlier result's CreatedAt.
	Before *time.Time
	Limit  int
}

// ClampLimit bounds a requested page size to 1..MaxPageSize, defaulting to
// DefaultPageSize.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return DefaultPageSize
	}
	return limit
}

// build renders q as SQL plus positional arguments.
func (q Query) build() (string, []any) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT al.id, al.company_id, al.actor_user_id, u.email, al.action, al.meta, al.created_at
		FROM audit_log al
		LEFT JOIN users u ON u.id = al.actor_user_id
		WHERE al.company_id = $1`)
	args := []any{q.CompanyID}

	if q.Action != "" {
		args = append(args, q.Action)
		if strings.HasSuffix(q.Action, ".") {
			sb.WriteString(` AND starts_with(al.action, $` + strconv.Itoa(len(args)) + `)`)
		} else {
			sb.WriteString(` AND al.action = $` + strconv.Itoa(len(args)))
		}
	}
	if q.Before != nil {
		args = append(args, *q.Before)
		sb.WriteString(` AND al.created_at < $` + strconv.Itoa(len(args)))
	}

	args = append(args, ClampLimit(q.Limit))
	sb.WriteString(` ORDER BY al.created_at DESC LIMIT $` + strconv.Itoa(len(args)))
	return sb.String(), args
}

// List returns the events matching q.
func (r *Reader) List(ctx context.Context, q Query) ([]Event, error) {
	sql, args := q.build()
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	out, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit rows: %w", err)
	}
	return out, nil
}

func scanEvent(row pgx.CollectableRow) (Event, error) {
	var (
		ev         Event
		actorID    uuid.NullUUID
		actorEmail *string
		metaRaw    []byte
	)
	if err := row.Scan(&ev.ID, &ev.CompanyID, &actorID, &actorEmail, &ev.Action, &metaRaw, &ev.CreatedAt); err != nil {
		return ev, err
	}
	if actorID.Valid {
		ev.ActorUserID = &actorID.UUID
	}
	if actorEmail != nil {
		ev.ActorEmail = *actorEmail
	}
	ev.Meta = map[string]any{}
	if len(metaRaw) > 0 {
		// Meta is written by Writer; a bad row still lists with empty meta.
		_ = json.Unmarshal(metaRaw, &ev.Meta)
	}
	return ev, nil
}
