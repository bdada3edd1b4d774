package service_test

import (
	"testing"

	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/G159w/chat-bot-cordinator/pkg/service"
	"github.com/G159w/chat-bot-cordinator/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrewServiceCreateCrew(t *testing.T) {

	t.Run("WithAgents", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewCrewService(store, logger{})

		crewID, err := svc.CreateCrew("user-a", "support", "handles tickets", []models.Agent{
			{Name: "triage", Role: "coordinator", IsCoordinator: true},
			{Name: "responder", Role: "writer"},
		})
		require.NoError(t, err)
		require.NotEmpty(t, crewID)

		crew, err := svc.GetCrew(crewID, "user-a")
		require.NoError(t, err)
		assert.Equal(t, "support", crew.Name)
		assert.True(t, crew.IsActive)
		require.Len(t, crew.Agents, 2)
		assert.Equal(t, "triage", crew.Agents[0].Name)
		assert.Equal(t, 0, crew.Agents[0].Order)
		assert.Equal(t, "responder", crew.Agents[1].Name)
		assert.Equal(t, 1, crew.Agents[1].Order)
	})

	t.Run("EmptyName", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewCrewService(store, logger{})
		_, err := svc.CreateCrew("user-a", "", "", nil)
		assert.Error(t, err)
	})

	t.Run("TwoCoordinators", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewCrewService(store, logger{})
		_, err := svc.CreateCrew("user-a", "support", "", []models.Agent{
			{Name: "a", IsCoordinator: true},
			{Name: "b", IsCoordinator: true},
		})
		assert.ErrorIs(t, err, service.ErrOnlyOneCoordinator)

		crews, err := svc.ListCrews("user-a")
		require.NoError(t, err)
		assert.Empty(t, crews)
	})
}

func TestCrewServiceAddAgent(t *testing.T) {

	t.Run("AppendsWithNextOrder", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewCrewService(store, logger{})
		crewID, err := svc.CreateCrew("user-a", "support", "", []models.Agent{
			{Name: "triage", IsCoordinator: true},
		})
		require.NoError(t, err)

		agentID, err := svc.AddAgent("user-a", crewID, models.Agent{Name: "responder", Role: "writer"})
		require.NoError(t, err)
		require.NotEmpty(t, agentID)

		crew, err := svc.GetCrew(crewID, "user-a")
		require.NoError(t, err)
		require.Len(t, crew.Agents, 2)
		assert.Equal(t, 1, crew.Agents[1].Order)
	})

	t.Run("SecondCoordinatorRejected", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewCrewService(store, logger{})
		crewID, err := svc.CreateCrew("user-a", "support", "", []models.Agent{
			{Name: "triage", IsCoordinator: true},
		})
		require.NoError(t, err)

		_, err = svc.AddAgent("user-a", crewID, models.Agent{Name: "usurper", IsCoordinator: true})
		assert.ErrorIs(t, err, service.ErrOnlyOneCoordinator)
	})

	t.Run("ForeignCrew", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := service.NewCrewService(store, logger{})
		crewID, err := svc.CreateCrew("user-a", "support", "", nil)
		require.NoError(t, err)

		_, err = svc.AddAgent("user-b", crewID, models.Agent{Name: "intruder"})
		assert.ErrorIs(t, err, service.ErrCrewNotFound)
	})
}

func TestCrewServiceDeleteCrew(t *testing.T) {
	store := storage.NewMockStore()
	svc := service.NewCrewService(store, logger{})
	crewID, err := svc.CreateCrew("user-a", "support", "", []models.Agent{
		{Name: "triage", Role: "coordinator", IsCoordinator: true},
	})
	require.NoError(t, err)

	flowID, err := store.SaveFlow(models.Flow{CrewID: crewID, Name: "f", IsActive: true})
	require.NoError(t, err)
	_, err = store.SaveTask(models.Task{FlowID: flowID, Name: "t", Type: models.InputTaskType})
	require.NoError(t, err)
	executionID, err := store.SaveWorkflowExecution(models.WorkflowExecution{
		CrewID: crewID, UserID: "user-a", Input: "x", Status: models.RunningExecutionStatus,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteCrew(crewID, "user-b"), service.ErrCrewNotFound)
	require.NoError(t, svc.DeleteCrew(crewID, "user-a"))
	_, err = svc.GetCrew(crewID, "user-a")
	assert.ErrorIs(t, err, service.ErrCrewNotFound)

	// Deletion cascades through agents, flows, tasks and execution records.
	agents, err := store.GetAgentsByCrew(crewID)
	require.NoError(t, err)
	assert.Empty(t, agents)
	flows, err := store.ListFlowsByCrew(crewID)
	require.NoError(t, err)
	assert.Empty(t, flows)
	tasks, err := store.GetTasksByFlow(flowID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	_, err = store.GetWorkflowExecution(executionID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
