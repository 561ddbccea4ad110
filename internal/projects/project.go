package projects

import (
	"time"

	"github.com/google/uuid"
)

// Project is a forest-inventory analysis unit owning one dataset and its
// pipeline state.
type Project struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CurrentStage *string   `json:"current_stage"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StageStatus is the last observed status of a stage for a project.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageState is one row of a project's stage-state table. CompletedAt holds
// the time of the last success and survives later failures.
type StageState struct {
	ProjectID   uuid.UUID   `json:"project_id"`
	Stage       string      `json:"stage"`
	Status      StageStatus `json:"status"`
	JobID       *uuid.UUID  `json:"job_id,omitempty"`
	LastRunAt   *time.Time  `json:"last_run_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Detail      string      `json:"detail,omitempty"`
}

// Succeeded reports whether the stage has succeeded at least once.
func (s StageState) Succeeded() bool {
	return s.CompletedAt != nil
}

// CreateCommand holds the fields of a new project.
type CreateCommand struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateCommand holds project metadata changes.
type UpdateCommand struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}
