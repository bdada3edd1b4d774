package storage

import (
	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations for the execution engine.
// Begin returns a transactional view of the store; Commit/Rollback only make
// sense on the value returned by Begin.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Crew operations
	SaveCrew(c models.Crew) (string, error)
	GetCrew(id, userID string) (models.Crew, error)
	ListCrews(userID string) ([]models.Crew, error)
	DeleteCrew(id, userID string) error

	// Agent operations
	SaveAgent(a models.Agent) (string, error)
	GetAgentsByCrew(crewID string) ([]models.Agent, error)

	// Flow operations
	SaveFlow(f models.Flow) (string, error)
	GetFlow(id, userID string) (models.Flow, error)
	ListFlowsByCrew(crewID string) ([]models.Flow, error)
	UpdateFlow(id string, upd models.FlowUpdate) error

	// Task operations
	SaveTask(t models.Task) (string, error)
	GetTask(id string) (models.Task, error)
	GetTasksByFlow(flowID string) ([]models.Task, error)

	// Flow execution operations
	SaveFlowExecution(e models.FlowExecution) (string, error)
	GetFlowExecution(id string) (models.FlowExecution, error)
	UpdateFlowExecutionStatus(id string, status models.ExecutionStatus, result models.JSONMap) error

	// Task execution operations
	SaveTaskExecution(e models.TaskExecution) (string, error)
	GetTaskExecutions(flowExecutionID string) ([]models.TaskExecution, error)
	UpdateTaskExecutionStatus(id string, status models.ExecutionStatus, upd models.TaskExecutionUpdate) error

	// Workflow execution operations
	SaveWorkflowExecution(e models.WorkflowExecution) (string, error)
	GetWorkflowExecution(id string) (models.WorkflowExecution, error)
	UpdateWorkflowExecutionStatus(id string, status models.ExecutionStatus, result string) error

	// Agent execution operations
	SaveAgentExecution(e models.AgentExecution) (string, error)
	GetAgentExecutions(workflowExecutionID string) ([]models.AgentExecution, error)
	UpdateAgentExecutionStatus(id string, status models.ExecutionStatus, upd models.AgentExecutionUpdate) error

	// Execution step operations
	SaveExecutionStep(s models.ExecutionStep) (string, error)
	GetExecutionSteps(agentExecutionID string) ([]models.ExecutionStep, error)
}
