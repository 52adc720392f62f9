package projects

import (
	"time"

	"github.com/google/uuid"
)

// Status is a project's lifecycle stage.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPlanning, StatusInProgress, StatusOnHold, StatusCompleted:
		return true
	}
	return false
}

// Project represents a project within a company
type Project struct {
	ID          uuid.UUID  `json:"id"`
	CompanyID   uuid.UUID  `json:"company_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Status      Status     `json:"status"`
	Budget      *float64   `json:"budget"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Input is the editable set of project fields, used for create and update.
type Input struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Status      Status   `json:"status"`
	Budget      *float64 `json:"budget"`
}

// fields is Input after validation.
type fields struct {
	name        string
	description *string
	startDate   *time.Time
	endDate     *time.Time
	status      Status
	budget      *float64
}
