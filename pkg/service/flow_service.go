package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/G159w/chat-bot-cordinator/pkg/storage"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for the services
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// FlowService manages flow definitions and orchestrates flow executions.
// ExecuteFlow validates synchronously, persists the running execution record
// and returns its id; the task sequence then runs on a detached goroutine.
// Once submitted a run cannot be cancelled.
type FlowService struct {
	store  storage.Store
	runner *TaskRunner
	logger Logger
	wg     sync.WaitGroup
}

func NewFlowService(store storage.Store, runner *TaskRunner, logger Logger) *FlowService {
	if runner == nil {
		runner = NewTaskRunner(nil, nil)
	}
	return &FlowService{
		store:  store,
		runner: runner,
		logger: logger,
	}
}

// Wait blocks until all background runs started by this service have
// finished. Used on shutdown and by tests.
func (s *FlowService) Wait() {
	s.wg.Wait()
}

// CreateFlow creates a flow under a crew the user owns.
func (s *FlowService) CreateFlow(userID, crewID, name, description string) (string, error) {
	if _, err := s.store.GetCrew(crewID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrCrewNotFound
		}
		return "", err
	}
	id, err := s.store.SaveFlow(models.Flow{
		CrewID:      crewID,
		Name:        name,
		Description: description,
		IsActive:    true,
	})
	if err != nil {
		return "", err
	}
	s.logger.Infof("Created flow '%s' with ID %s", name, id)
	return id, nil
}

// CreateTask appends a task to a flow the user owns.
func (s *FlowService) CreateTask(userID string, task models.Task) (string, error) {
	if _, err := s.store.GetFlow(task.FlowID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrFlowNotFound
		}
		return "", err
	}
	id, err := s.store.SaveTask(task)
	if err != nil {
		return "", err
	}
	s.logger.Infof("Created task '%s' with ID %s in flow %s", task.Name, id, task.FlowID)
	return id, nil
}

// UpdateFlow updates a flow's mutable fields.
func (s *FlowService) UpdateFlow(userID, flowID string, upd models.FlowUpdate) error {
	if _, err := s.store.GetFlow(flowID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrFlowNotFound
		}
		return err
	}
	return s.store.UpdateFlow(flowID, upd)
}

// GetTasks lists a flow's tasks in execution order.
func (s *FlowService) GetTasks(userID, flowID string) ([]models.Task, error) {
	if _, err := s.store.GetFlow(flowID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, err
	}
	return s.store.GetTasksByFlow(flowID)
}

// ListFlows lists the flows of a crew.
func (s *FlowService) ListFlows(crewID string) ([]models.Flow, error) {
	return s.store.ListFlowsByCrew(crewID)
}

// ExecuteFlow validates the flow and submits a run. The returned execution id
// is valid immediately; the caller polls GetExecutionStatus for the outcome.
func (s *FlowService) ExecuteFlow(userID, flowID string, input models.JSONMap) (executionID string, err error) {
	flow, err := s.store.GetFlow(flowID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrFlowNotFound
		}
		return "", err
	}
	if !flow.IsActive {
		return "", ErrFlowInactive
	}
	tasks, err := s.store.GetTasksByFlow(flowID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "", ErrNoTasksInFlow
	}

	// No execution row exists until every validation above has passed.
	txStore, err := s.store.Begin()
	if err != nil {
		return "", err
	}

	executionID, err = txStore.SaveFlowExecution(models.FlowExecution{
		FlowID:    flowID,
		UserID:    userID,
		Input:     input,
		Status:    models.RunningExecutionStatus,
		StartedAt: time.Now(),
	})
	if err != nil {
		if rollbackErr := txStore.Rollback(); rollbackErr != nil {
			s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
		}
		return "", err
	}

	// The run writes through the non-transactional store and a poll on the
	// returned id may arrive immediately, so the row must be committed before
	// the run is scheduled.
	if err = txStore.Commit(); err != nil {
		s.logger.Errorf("Failed to commit: %v", err)
		return "", err
	}

	s.wg.Add(1)
	go s.runFlow(executionID, flow, tasks, input)

	s.logger.Infof("Submitted execution %s for flow '%s'", executionID, flow.Name)
	return executionID, nil
}

// runFlow is the detached run loop. A failing task is recorded and the loop
// continues; only a failure of the orchestration itself marks the parent
// failed.
func (s *FlowService) runFlow(executionID string, flow models.Flow, tasks []models.Task, input models.JSONMap) {
	defer s.wg.Done()
	ctx := context.Background()

	sorted := make([]models.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	for _, task := range sorted {
		if err := s.runTask(ctx, executionID, task, input); err != nil {
			s.logger.Errorf("Execution %s of flow '%s' aborted: %v", executionID, flow.Name, err)
			s.failFlowExecution(executionID, err)
			return
		}
	}

	if err := s.store.UpdateFlowExecutionStatus(executionID, models.CompletedExecutionStatus, nil); err != nil {
		s.logger.Errorf("Failed to complete execution %s: %v", executionID, err)
		return
	}
	s.logger.Infof("Execution %s of flow '%s' completed", executionID, flow.Name)
}

// runTask persists one task's lifecycle. A task-level failure is recorded on
// the task execution and reported as nil; the returned error is reserved for
// persistence failures.
func (s *FlowService) runTask(ctx context.Context, executionID string, task models.Task, input models.JSONMap) error {
	taskExecutionID, err := s.store.SaveTaskExecution(models.TaskExecution{
		FlowExecutionID: executionID,
		TaskID:          task.ID,
		Input:           input,
		Status:          models.RunningExecutionStatus,
		StartedAt:       time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create task execution for task %s", task.ID)
	}

	start := time.Now()
	output, runErr := s.runner.Run(ctx, task, input)
	duration := time.Since(start).Milliseconds()

	if runErr != nil {
		s.logger.Errorf("Task '%s' failed in execution %s: %v", task.Name, executionID, runErr)
		if err := s.store.UpdateTaskExecutionStatus(taskExecutionID, models.FailedExecutionStatus, models.TaskExecutionUpdate{
			Duration: duration,
			ErrorMsg: runErr.Error(),
		}); err != nil {
			return errors.Wrapf(err, "failed to record failure of task %s", task.ID)
		}
		return nil
	}

	if err := s.store.UpdateTaskExecutionStatus(taskExecutionID, models.CompletedExecutionStatus, models.TaskExecutionUpdate{
		Output:   output,
		Duration: duration,
	}); err != nil {
		return errors.Wrapf(err, "failed to record completion of task %s", task.ID)
	}
	return nil
}

func (s *FlowService) failFlowExecution(executionID string, cause error) {
	result := models.JSONMap{"error": cause.Error()}
	if err := s.store.UpdateFlowExecutionStatus(executionID, models.FailedExecutionStatus, result); err != nil {
		s.logger.Errorf("Failed to mark execution %s as failed: %v", executionID, err)
	}
}

// GetExecutionStatus returns the parent execution record. A nonexistent id
// and an id owned by another user are indistinguishable.
func (s *FlowService) GetExecutionStatus(executionID, userID string) (models.FlowExecution, error) {
	execution, err := s.store.GetFlowExecution(executionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.FlowExecution{}, ErrExecutionNotFound
		}
		return models.FlowExecution{}, err
	}
	if execution.UserID != userID {
		return models.FlowExecution{}, ErrExecutionNotFound
	}
	return execution, nil
}

// FlowExecutionDetails bundles the parent execution with its task executions
// in start order.
type FlowExecutionDetails struct {
	Execution      models.FlowExecution   `json:"execution"`
	TaskExecutions []models.TaskExecution `json:"task_executions"`
}

// GetExecutionDetails returns the execution and its per-task records. The
// caller must inspect task-level statuses: a completed parent only means the
// orchestrator finished iterating.
func (s *FlowService) GetExecutionDetails(executionID, userID string) (FlowExecutionDetails, error) {
	execution, err := s.GetExecutionStatus(executionID, userID)
	if err != nil {
		return FlowExecutionDetails{}, err
	}
	taskExecutions, err := s.store.GetTaskExecutions(executionID)
	if err != nil {
		return FlowExecutionDetails{}, fmt.Errorf("failed to get task executions for %s: %v", executionID, err)
	}
	return FlowExecutionDetails{
		Execution:      execution,
		TaskExecutions: taskExecutions,
	}, nil
}
