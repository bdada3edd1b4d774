package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/G159w/chat-bot-cordinator/pkg/storage"
	"github.com/pkg/errors"
)

// WorkflowService orchestrates crew executions. The designated coordinator
// agent runs first; its output is parsed as a task plan that decides which
// other agents run and with what input.
type WorkflowService struct {
	store  storage.Store
	caller ModelCaller
	logger Logger
	wg     sync.WaitGroup
}

func NewWorkflowService(store storage.Store, caller ModelCaller, logger Logger) *WorkflowService {
	if caller == nil {
		caller = NewMockModelCaller()
	}
	return &WorkflowService{
		store:  store,
		caller: caller,
		logger: logger,
	}
}

// Wait blocks until all background runs started by this service have
// finished. Used on shutdown and by tests.
func (s *WorkflowService) Wait() {
	s.wg.Wait()
}

// coordinatorPlan is the structure the coordinator's output is parsed into.
type coordinatorPlan struct {
	Tasks []coordinatorTask `json:"tasks"`
}

type coordinatorTask struct {
	AgentRole string `json:"agentRole"`
	Input     string `json:"input"`
}

// ExecuteWorkflow validates the crew and submits a run. The returned
// execution id is valid immediately; the caller polls GetExecutionStatus for
// the outcome.
func (s *WorkflowService) ExecuteWorkflow(userID, crewID, input string) (executionID string, err error) {
	if input == "" {
		return "", ErrInputRequired
	}
	crew, err := s.store.GetCrew(crewID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrCrewNotFound
		}
		return "", err
	}
	agents, err := s.store.GetAgentsByCrew(crewID)
	if err != nil {
		return "", err
	}
	if len(agents) == 0 {
		return "", ErrNoAgentsInCrew
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return "", err
	}

	executionID, err = txStore.SaveWorkflowExecution(models.WorkflowExecution{
		CrewID:    crewID,
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
	go s.runWorkflow(executionID, crew, agents, input)

	s.logger.Infof("Submitted execution %s for crew '%s'", executionID, crew.Name)
	return executionID, nil
}

// runWorkflow is the detached run loop: coordinator first, then the agents
// named by its plan, strictly in sequence. A failing plan agent is recorded
// and the loop continues; a coordinator failure fails the whole run, since
// its output drives everything after it.
func (s *WorkflowService) runWorkflow(executionID string, crew models.Crew, agents []models.Agent, input string) {
	defer s.wg.Done()
	ctx := context.Background()

	var coordinator *models.Agent
	for i := range agents {
		if agents[i].IsCoordinator {
			coordinator = &agents[i]
			break
		}
	}
	if coordinator == nil {
		s.failWorkflowExecution(executionID, "no coordinator agent found")
		return
	}

	coordinatorOutput, err := s.executeAgent(ctx, executionID, *coordinator, input)
	if err != nil {
		s.logger.Errorf("Coordinator '%s' failed in execution %s: %v", coordinator.Name, executionID, err)
		s.failWorkflowExecution(executionID, err.Error())
		return
	}

	plan := parseCoordinatorPlan(coordinatorOutput)
	for _, planned := range plan.Tasks {
		target := findAgentByRole(agents, planned.AgentRole)
		if target == nil {
			s.logger.Infof("Execution %s: plan names unknown role '%s', skipping", executionID, planned.AgentRole)
			continue
		}
		if _, err := s.executeAgent(ctx, executionID, *target, planned.Input); err != nil {
			// Recorded on the agent execution; remaining plan entries still run.
			s.logger.Errorf("Agent '%s' failed in execution %s: %v", target.Name, executionID, err)
		}
	}

	if err := s.store.UpdateWorkflowExecutionStatus(executionID, models.CompletedExecutionStatus, ""); err != nil {
		s.logger.Errorf("Failed to complete execution %s: %v", executionID, err)
		return
	}
	s.logger.Infof("Execution %s of crew '%s' completed", executionID, crew.Name)
}

// executeAgent persists one agent's lifecycle: the agent execution row, the
// llm_call audit step and the terminal status with timing and usage.
func (s *WorkflowService) executeAgent(ctx context.Context, executionID string, agent models.Agent, input string) (string, error) {
	agentExecutionID, err := s.store.SaveAgentExecution(models.AgentExecution{
		WorkflowExecutionID: executionID,
		AgentID:             agent.ID,
		Input:               input,
		Status:              models.RunningExecutionStatus,
		StartedAt:           time.Now(),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to create agent execution for agent %s", agent.ID)
	}

	start := time.Now()
	output, callErr := s.caller.Call(ctx, AgentSpec{
		Name:         agent.Name,
		Role:         agent.Role,
		Model:        agent.Model,
		Instructions: agent.Instructions,
		Temperature:  agent.Temperature,
	}, input)
	duration := time.Since(start).Milliseconds()

	if callErr != nil {
		if err := s.store.UpdateAgentExecutionStatus(agentExecutionID, models.FailedExecutionStatus, models.AgentExecutionUpdate{
			ErrorMsg: callErr.Error(),
		}); err != nil {
			s.logger.Errorf("Failed to record failure of agent %s: %v", agent.ID, err)
		}
		return "", callErr
	}

	if _, err := s.store.SaveExecutionStep(models.ExecutionStep{
		AgentExecutionID: agentExecutionID,
		StepType:         "llm_call",
		Input: models.JSONMap{
			"messages": []interface{}{
				map[string]interface{}{"role": "user", "content": input},
			},
		},
		Output: models.JSONMap{"response": output},
		Metadata: models.JSONMap{
			"model":      agent.Model,
			"tokensUsed": 0,
		},
		Duration:  duration,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Errorf("Failed to record execution step for agent %s: %v", agent.ID, err)
	}

	if err := s.store.UpdateAgentExecutionStatus(agentExecutionID, models.CompletedExecutionStatus, models.AgentExecutionUpdate{
		Output: output,
	}); err != nil {
		return "", errors.Wrapf(err, "failed to record completion of agent %s", agent.ID)
	}
	return output, nil
}

// parseCoordinatorPlan decodes the coordinator's output. Unparseable output
// degrades to an empty plan rather than failing the run.
func parseCoordinatorPlan(output string) coordinatorPlan {
	var plan coordinatorPlan
	if err := json.Unmarshal([]byte(output), &plan); err != nil {
		return coordinatorPlan{}
	}
	return plan
}

func findAgentByRole(agents []models.Agent, role string) *models.Agent {
	for i := range agents {
		if agents[i].Role == role {
			return &agents[i]
		}
	}
	return nil
}

func (s *WorkflowService) failWorkflowExecution(executionID, message string) {
	if err := s.store.UpdateWorkflowExecutionStatus(executionID, models.FailedExecutionStatus, message); err != nil {
		s.logger.Errorf("Failed to mark execution %s as failed: %v", executionID, err)
	}
}

// GetExecutionStatus returns the parent execution record. A nonexistent id
// and an id owned by another user are indistinguishable.
func (s *WorkflowService) GetExecutionStatus(executionID, userID string) (models.WorkflowExecution, error) {
	execution, err := s.store.GetWorkflowExecution(executionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.WorkflowExecution{}, ErrExecutionNotFound
		}
		return models.WorkflowExecution{}, err
	}
	if execution.UserID != userID {
		return models.WorkflowExecution{}, ErrExecutionNotFound
	}
	return execution, nil
}

// WorkflowExecutionDetails bundles the parent execution with its agent
// executions in start order.
type WorkflowExecutionDetails struct {
	Execution       models.WorkflowExecution `json:"execution"`
	AgentExecutions []models.AgentExecution  `json:"agent_executions"`
}

func (s *WorkflowService) GetExecutionDetails(executionID, userID string) (WorkflowExecutionDetails, error) {
	execution, err := s.GetExecutionStatus(executionID, userID)
	if err != nil {
		return WorkflowExecutionDetails{}, err
	}
	agentExecutions, err := s.store.GetAgentExecutions(executionID)
	if err != nil {
		return WorkflowExecutionDetails{}, fmt.Errorf("failed to get agent executions for %s: %v", executionID, err)
	}
	return WorkflowExecutionDetails{
		Execution:       execution,
		AgentExecutions: agentExecutions,
	}, nil
}
