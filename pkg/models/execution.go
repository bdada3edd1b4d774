package models

import "time"

type ExecutionStatus string

const (
	PendingExecutionStatus   ExecutionStatus = "pending"
	RunningExecutionStatus   ExecutionStatus = "running"
	CompletedExecutionStatus ExecutionStatus = "completed"
	FailedExecutionStatus    ExecutionStatus = "failed"
)

// Terminal reports whether the status is an end state. CompletedAt is set
// exactly once, on the transition into a terminal status.
func (s ExecutionStatus) Terminal() bool {
	return s == CompletedExecutionStatus || s == FailedExecutionStatus
}

// FlowExecution is one run of a flow against a given input.
type FlowExecution struct {
	ID          string          `json:"id" db:"id"`
	FlowID      string          `json:"flow_id" db:"flow_id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Input       JSONMap         `json:"input,omitempty" db:"input"`
	Status      ExecutionStatus `json:"status" db:"status"`
	Result      JSONMap         `json:"result,omitempty" db:"result"`
	StartedAt   time.Time       `json:"started_at" db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// TaskExecution is one run of a single task within a flow execution.
type TaskExecution struct {
	ID              string          `json:"id" db:"id"`
	FlowExecutionID string          `json:"flow_execution_id" db:"flow_execution_id"`
	TaskID          string          `json:"task_id" db:"task_id"`
	Input           JSONMap         `json:"input,omitempty" db:"input"`
	Output          JSONMap         `json:"output,omitempty" db:"output"`
	Status          ExecutionStatus `json:"status" db:"status"`
	StartedAt       time.Time       `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	Duration        int64           `json:"duration" db:"duration"` // milliseconds
	TokensUsed      int             `json:"tokens_used" db:"tokens_used"`
	Cost            int             `json:"cost" db:"cost"`
	ErrorMsg        string          `json:"error,omitempty" db:"error_msg"`
}

// TaskExecutionUpdate carries the fields written on a task execution's
// terminal transition.
type TaskExecutionUpdate struct {
	Output     JSONMap
	TokensUsed int
	Cost       int
	Duration   int64
	ErrorMsg   string
}

// WorkflowExecution is one run of a crew against a given input.
type WorkflowExecution struct {
	ID          string          `json:"id" db:"id"`
	CrewID      string          `json:"crew_id" db:"crew_id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Input       string          `json:"input" db:"input"`
	Status      ExecutionStatus `json:"status" db:"status"`
	Result      string          `json:"result,omitempty" db:"result"`
	Metadata    JSONMap         `json:"metadata,omitempty" db:"metadata"`
	StartedAt   time.Time       `json:"started_at" db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// AgentExecution is one run of a single agent within a workflow execution.
type AgentExecution struct {
	ID                  string          `json:"id" db:"id"`
	WorkflowExecutionID string          `json:"workflow_execution_id" db:"workflow_execution_id"`
	AgentID             string          `json:"agent_id" db:"agent_id"`
	Input               string          `json:"input" db:"input"`
	Output              string          `json:"output,omitempty" db:"output"`
	Status              ExecutionStatus `json:"status" db:"status"`
	StartedAt           time.Time       `json:"started_at" db:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	TokensUsed          int             `json:"tokens_used" db:"tokens_used"`
	Cost                int             `json:"cost" db:"cost"`
	ErrorMsg            string          `json:"error,omitempty" db:"error_msg"`
}

// AgentExecutionUpdate carries the fields written on an agent execution's
// terminal transition.
type AgentExecutionUpdate struct {
	Output     string
	TokensUsed int
	Cost       int
	ErrorMsg   string
}

// ExecutionStep is an audit record of a single capability invocation (an LLM
// call) made while executing an agent.
type ExecutionStep struct {
	ID               string    `json:"id" db:"id"`
	AgentExecutionID string    `json:"agent_execution_id" db:"agent_execution_id"`
	StepType         string    `json:"step_type" db:"step_type"`
	Input            JSONMap   `json:"input,omitempty" db:"input"`
	Output           JSONMap   `json:"output,omitempty" db:"output"`
	Metadata         JSONMap   `json:"metadata,omitempty" db:"metadata"`
	Duration         int64     `json:"duration" db:"duration"` // milliseconds
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
}
