package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// Domain errors surfaced at the service boundary. Callers match these with
// errors.Is; anything else is an internal failure.
var (
	ErrCrewNotFound       = errors.New("crew not found")
	ErrFlowNotFound       = errors.New("flow not found")
	ErrFlowInactive       = errors.New("flow is not active")
	ErrNoTasksInFlow      = errors.New("no tasks found in flow")
	ErrNoAgentsInCrew     = errors.New("no agents found in crew")
	ErrInputRequired      = errors.New("input is required")
	ErrTaskNotFound       = errors.New("task not found")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrOnlyOneCoordinator = errors.New("only one agent can be coordinator")
)

// UnknownTaskTypeError is returned by the task runner for a task type outside
// the closed dispatch set. The orchestrator records it on the task execution
// and moves on; it never aborts the run.
type UnknownTaskTypeError struct {
	Type string
}

func (e *UnknownTaskTypeError) Error() string {
	return fmt.Sprintf("unknown task type: %s", e.Type)
}
