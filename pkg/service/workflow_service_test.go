package service_test

import (
	"context"
	"testing"

	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/G159w/chat-bot-cordinator/pkg/service"
	"github.com/G159w/chat-bot-cordinator/pkg/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// planCaller drives the workflow from the test: the coordinator role gets a
// canned plan, every other role gets either an echo or a scripted failure.
type planCaller struct {
	plan     string
	failures map[string]error
	calls    []string
}

func (c *planCaller) Call(_ context.Context, agent service.AgentSpec, input string) (string, error) {
	c.calls = append(c.calls, agent.Role)
	if agent.Role == "coordinator" {
		return c.plan, nil
	}
	if err, ok := c.failures[agent.Role]; ok {
		return "", err
	}
	return "handled by " + agent.Role + ": " + input, nil
}

type crewFixture struct {
	store  storage.Store
	userID string
	crewID string
	agents map[string]string // role -> agent id
}

func newCrewFixture(t *testing.T, userID string, roles ...string) *crewFixture {
	store := storage.NewMockStore()
	crewID, err := store.SaveCrew(models.Crew{UserID: userID, Name: "support crew", IsActive: true})
	require.NoError(t, err)
	f := &crewFixture{store: store, userID: userID, crewID: crewID, agents: map[string]string{}}
	for i, role := range roles {
		id, err := store.SaveAgent(models.Agent{
			CrewID:        crewID,
			Name:          role + " agent",
			Role:          role,
			Model:         "gpt-4",
			IsCoordinator: role == "coordinator",
			Order:         i,
		})
		require.NoError(t, err)
		f.agents[role] = id
	}
	return f
}

func TestWorkflowServiceExecuteWorkflow(t *testing.T) {

	t.Run("EmptyInput", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator")
		svc := service.NewWorkflowService(f.store, nil, logger{})
		_, err := svc.ExecuteWorkflow(f.userID, f.crewID, "")
		assert.ErrorIs(t, err, service.ErrInputRequired)
	})

	t.Run("UnknownCrew", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator")
		svc := service.NewWorkflowService(f.store, nil, logger{})
		_, err := svc.ExecuteWorkflow(f.userID, "2a0d1c6a-0000-0000-0000-000000000000", "hello")
		assert.ErrorIs(t, err, service.ErrCrewNotFound)
	})

	t.Run("CrewOwnedByAnotherUser", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator")
		svc := service.NewWorkflowService(f.store, nil, logger{})
		_, err := svc.ExecuteWorkflow("user-b", f.crewID, "hello")
		assert.ErrorIs(t, err, service.ErrCrewNotFound)
	})

	t.Run("CrewWithoutAgents", func(t *testing.T) {
		f := newCrewFixture(t, "user-a")
		svc := service.NewWorkflowService(f.store, nil, logger{})
		_, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		assert.ErrorIs(t, err, service.ErrNoAgentsInCrew)
	})

	t.Run("NoCoordinatorFailsRun", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "researcher", "writer")
		svc := service.NewWorkflowService(f.store, nil, logger{})

		executionID, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		require.NoError(t, err)
		svc.Wait()

		execution, err := svc.GetExecutionStatus(executionID, f.userID)
		require.NoError(t, err)
		assert.Equal(t, models.FailedExecutionStatus, execution.Status)
		assert.Contains(t, execution.Result, "no coordinator agent found")
		require.NotNil(t, execution.CompletedAt)
	})

	t.Run("PlanDrivesAgentSequence", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator", "researcher", "writer")
		caller := &planCaller{
			plan: `{"tasks":[{"agentRole":"researcher","input":"find sources"},{"agentRole":"writer","input":"draft summary"}]}`,
		}
		svc := service.NewWorkflowService(f.store, caller, logger{})

		executionID, err := svc.ExecuteWorkflow(f.userID, f.crewID, "write a report")
		require.NoError(t, err)
		svc.Wait()

		assert.Equal(t, []string{"coordinator", "researcher", "writer"}, caller.calls)

		details, err := svc.GetExecutionDetails(executionID, f.userID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedExecutionStatus, details.Execution.Status)
		require.Len(t, details.AgentExecutions, 3)

		assert.Equal(t, f.agents["coordinator"], details.AgentExecutions[0].AgentID)
		assert.Equal(t, "write a report", details.AgentExecutions[0].Input)
		assert.Equal(t, f.agents["researcher"], details.AgentExecutions[1].AgentID)
		assert.Equal(t, "find sources", details.AgentExecutions[1].Input)
		assert.Equal(t, f.agents["writer"], details.AgentExecutions[2].AgentID)
		assert.Equal(t, "draft summary", details.AgentExecutions[2].Input)
		for _, ae := range details.AgentExecutions {
			assert.Equal(t, models.CompletedExecutionStatus, ae.Status)
		}
	})

	t.Run("UnparseablePlanRunsOnlyCoordinator", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator", "researcher")
		caller := &planCaller{plan: "I could not produce a plan, sorry"}
		svc := service.NewWorkflowService(f.store, caller, logger{})

		executionID, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		require.NoError(t, err)
		svc.Wait()

		details, err := svc.GetExecutionDetails(executionID, f.userID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedExecutionStatus, details.Execution.Status)
		require.Len(t, details.AgentExecutions, 1)
		assert.Equal(t, f.agents["coordinator"], details.AgentExecutions[0].AgentID)
	})

	t.Run("UnknownRoleInPlanIsSkipped", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator", "writer")
		caller := &planCaller{
			plan: `{"tasks":[{"agentRole":"translator","input":"x"},{"agentRole":"writer","input":"y"}]}`,
		}
		svc := service.NewWorkflowService(f.store, caller, logger{})

		executionID, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		require.NoError(t, err)
		svc.Wait()

		details, err := svc.GetExecutionDetails(executionID, f.userID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedExecutionStatus, details.Execution.Status)
		require.Len(t, details.AgentExecutions, 2)
		assert.Equal(t, f.agents["writer"], details.AgentExecutions[1].AgentID)
	})

	t.Run("CoordinatorFailureFailsRun", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator", "writer")
		svc := service.NewWorkflowService(f.store, failingCoordinatorCaller{}, logger{})

		executionID, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		require.NoError(t, err)
		svc.Wait()

		execution, err := svc.GetExecutionStatus(executionID, f.userID)
		require.NoError(t, err)
		assert.Equal(t, models.FailedExecutionStatus, execution.Status)
		assert.Contains(t, execution.Result, "model unavailable")

		details, err := svc.GetExecutionDetails(executionID, f.userID)
		require.NoError(t, err)
		require.Len(t, details.AgentExecutions, 1)
		assert.Equal(t, models.FailedExecutionStatus, details.AgentExecutions[0].Status)
		assert.Contains(t, details.AgentExecutions[0].ErrorMsg, "model unavailable")
	})

	t.Run("PlanAgentFailureDoesNotAbortRun", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator", "researcher", "writer")
		caller := &planCaller{
			plan:     `{"tasks":[{"agentRole":"researcher","input":"a"},{"agentRole":"writer","input":"b"}]}`,
			failures: map[string]error{"researcher": errors.New("rate limited")},
		}
		svc := service.NewWorkflowService(f.store, caller, logger{})

		executionID, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		require.NoError(t, err)
		svc.Wait()

		details, err := svc.GetExecutionDetails(executionID, f.userID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedExecutionStatus, details.Execution.Status)
		require.Len(t, details.AgentExecutions, 3)
		assert.Equal(t, models.FailedExecutionStatus, details.AgentExecutions[1].Status)
		assert.Contains(t, details.AgentExecutions[1].ErrorMsg, "rate limited")
		assert.Equal(t, models.CompletedExecutionStatus, details.AgentExecutions[2].Status)
	})

	t.Run("RecordsLLMCallSteps", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator", "writer")
		caller := &planCaller{plan: `{"tasks":[{"agentRole":"writer","input":"draft"}]}`}
		svc := service.NewWorkflowService(f.store, caller, logger{})

		executionID, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		require.NoError(t, err)
		svc.Wait()

		details, err := svc.GetExecutionDetails(executionID, f.userID)
		require.NoError(t, err)
		require.Len(t, details.AgentExecutions, 2)

		steps, err := f.store.GetExecutionSteps(details.AgentExecutions[1].ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, "llm_call", steps[0].StepType)
		assert.Equal(t, models.JSONMap{"response": "handled by writer: draft"}, steps[0].Output)
		assert.Equal(t, "gpt-4", steps[0].Metadata["model"])
	})

	t.Run("ParentRowCommittedBeforeRunStarts", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator")
		ordered := newEventOrderStore(f.store)
		caller := &planCaller{plan: `{"tasks":[]}`}

		svc := service.NewWorkflowService(ordered, caller, logger{})
		_, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		require.NoError(t, err)
		svc.Wait()

		events := ordered.recorded()
		require.NotEmpty(t, events)
		assert.Equal(t, "commit", events[0])
	})

	t.Run("StatusHidesForeignExecutions", func(t *testing.T) {
		f := newCrewFixture(t, "user-a", "coordinator")
		caller := &planCaller{plan: `{"tasks":[]}`}
		svc := service.NewWorkflowService(f.store, caller, logger{})

		executionID, err := svc.ExecuteWorkflow(f.userID, f.crewID, "hello")
		require.NoError(t, err)
		svc.Wait()

		_, err = svc.GetExecutionStatus(executionID, "user-b")
		assert.ErrorIs(t, err, service.ErrExecutionNotFound)
		_, err = svc.GetExecutionDetails(executionID, "user-b")
		assert.ErrorIs(t, err, service.ErrExecutionNotFound)
	})
}

// failingCoordinatorCaller fails every call. Used where the coordinator itself
// must error out.
type failingCoordinatorCaller struct{}

func (failingCoordinatorCaller) Call(_ context.Context, _ service.AgentSpec, _ string) (string, error) {
	return "", errors.New("model unavailable")
}
