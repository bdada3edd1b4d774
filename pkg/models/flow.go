package models

import "time"

type TaskType string

const (
	AgentTaskType     TaskType = "agent"
	ConditionTaskType TaskType = "condition"
	InputTaskType     TaskType = "input"
)

// Flow is an ordered list of tasks belonging to a crew. Inactive flows
// reject execution.
type Flow struct {
	ID          string    `json:"id" db:"id"`
	CrewID      string    `json:"crew_id" db:"crew_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	Tasks       []Task    `json:"tasks,omitempty" db:"-"` // populated at read time
}

// Task is one unit of work within a flow. Tasks run in ascending Order;
// ties keep insertion order.
type Task struct {
	ID          string    `json:"id" db:"id"`
	FlowID      string    `json:"flow_id" db:"flow_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Type        TaskType  `json:"task_type" db:"task_type"`
	Config      JSONMap   `json:"config,omitempty" db:"config"`
	Order       int       `json:"order" db:"order"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// FlowUpdate carries the mutable flow fields; nil means leave unchanged.
type FlowUpdate struct {
	Name        *string
	Description *string
	IsActive    *bool
}
