package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// mockStore implements Store with in-memory storage. A single mutex guards all
// slices; the engine is the sole writer per execution but reads may race with
// a background run.
type mockStore struct {
	mu             *sync.Mutex
	crews          *[]models.Crew
	agents         *[]models.Agent
	flows          *[]models.Flow
	tasks          *[]models.Task
	flowExecs      *[]models.FlowExecution
	taskExecs      *[]models.TaskExecution
	workflowExecs  *[]models.WorkflowExecution
	agentExecs     *[]models.AgentExecution
	executionSteps *[]models.ExecutionStep
	committed      bool // transaction state
}

func NewMockStore() Store {
	return &mockStore{
		mu:             &sync.Mutex{},
		crews:          &[]models.Crew{},
		agents:         &[]models.Agent{},
		flows:          &[]models.Flow{},
		tasks:          &[]models.Task{},
		flowExecs:      &[]models.FlowExecution{},
		taskExecs:      &[]models.TaskExecution{},
		workflowExecs:  &[]models.WorkflowExecution{},
		agentExecs:     &[]models.AgentExecution{},
		executionSteps: &[]models.ExecutionStep{},
	}
}

func (m *mockStore) Begin() (Store, error) {
	// Shares backing slices; nested transactions are a no-op in memory.
	tx := *m
	tx.committed = false
	return &tx, nil
}

func (m *mockStore) Commit() error {
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	return nil
}

func (m *mockStore) Rollback() error {
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveCrew(c models.Crew) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	c.ID = uuid.NewString()
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Agents = nil
	*m.crews = append(*m.crews, c)
	return c.ID, nil
}

func (m *mockStore) GetCrew(id, userID string) (models.Crew, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range *m.crews {
		if c.ID == id && c.UserID == userID {
			c.Agents = m.agentsByCrewLocked(id)
			return c, nil
		}
	}
	return models.Crew{}, ErrNotFound
}

func (m *mockStore) ListCrews(userID string) ([]models.Crew, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Crew
	for _, c := range *m.crews {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// DeleteCrew removes the crew and, mirroring the schema's ON DELETE CASCADE,
// every row that hangs off it.
func (m *mockStore) DeleteCrew(id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return errors.New("transaction already committed")
	}
	found := false
	for i, c := range *m.crews {
		if c.ID == id && c.UserID == userID {
			*m.crews = append((*m.crews)[:i], (*m.crews)[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	kept := (*m.agents)[:0]
	for _, a := range *m.agents {
		if a.CrewID != id {
			kept = append(kept, a)
		}
	}
	*m.agents = kept

	flowIDs := map[string]bool{}
	flows := (*m.flows)[:0]
	for _, f := range *m.flows {
		if f.CrewID == id {
			flowIDs[f.ID] = true
			continue
		}
		flows = append(flows, f)
	}
	*m.flows = flows

	tasks := (*m.tasks)[:0]
	for _, t := range *m.tasks {
		if !flowIDs[t.FlowID] {
			tasks = append(tasks, t)
		}
	}
	*m.tasks = tasks

	flowExecIDs := map[string]bool{}
	flowExecs := (*m.flowExecs)[:0]
	for _, e := range *m.flowExecs {
		if flowIDs[e.FlowID] {
			flowExecIDs[e.ID] = true
			continue
		}
		flowExecs = append(flowExecs, e)
	}
	*m.flowExecs = flowExecs

	taskExecs := (*m.taskExecs)[:0]
	for _, e := range *m.taskExecs {
		if !flowExecIDs[e.FlowExecutionID] {
			taskExecs = append(taskExecs, e)
		}
	}
	*m.taskExecs = taskExecs

	workflowExecIDs := map[string]bool{}
	workflowExecs := (*m.workflowExecs)[:0]
	for _, e := range *m.workflowExecs {
		if e.CrewID == id {
			workflowExecIDs[e.ID] = true
			continue
		}
		workflowExecs = append(workflowExecs, e)
	}
	*m.workflowExecs = workflowExecs

	agentExecIDs := map[string]bool{}
	agentExecs := (*m.agentExecs)[:0]
	for _, e := range *m.agentExecs {
		if workflowExecIDs[e.WorkflowExecutionID] {
			agentExecIDs[e.ID] = true
			continue
		}
		agentExecs = append(agentExecs, e)
	}
	*m.agentExecs = agentExecs

	steps := (*m.executionSteps)[:0]
	for _, s := range *m.executionSteps {
		if !agentExecIDs[s.AgentExecutionID] {
			steps = append(steps, s)
		}
	}
	*m.executionSteps = steps
	return nil
}

func (m *mockStore) SaveAgent(a models.Agent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	*m.agents = append(*m.agents, a)
	return a.ID, nil
}

func (m *mockStore) GetAgentsByCrew(crewID string) ([]models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agentsByCrewLocked(crewID), nil
}

func (m *mockStore) agentsByCrewLocked(crewID string) []models.Agent {
	var out []models.Agent
	for _, a := range *m.agents {
		if a.CrewID == crewID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (m *mockStore) SaveFlow(f models.Flow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	f.ID = uuid.NewString()
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	f.Tasks = nil
	*m.flows = append(*m.flows, f)
	return f.ID, nil
}

// GetFlow resolves ownership through the flow's crew, mirroring the SQL join.
func (m *mockStore) GetFlow(id, userID string) (models.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range *m.flows {
		if f.ID != id {
			continue
		}
		for _, c := range *m.crews {
			if c.ID == f.CrewID && c.UserID == userID {
				return f, nil
			}
		}
	}
	return models.Flow{}, ErrNotFound
}

func (m *mockStore) ListFlowsByCrew(crewID string) ([]models.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Flow
	for _, f := range *m.flows {
		if f.CrewID == crewID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateFlow(id string, upd models.FlowUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return errors.New("transaction already committed")
	}
	for i, f := range *m.flows {
		if f.ID == id {
			if upd.Name != nil {
				(*m.flows)[i].Name = *upd.Name
			}
			if upd.Description != nil {
				(*m.flows)[i].Description = *upd.Description
			}
			if upd.IsActive != nil {
				(*m.flows)[i].IsActive = *upd.IsActive
			}
			(*m.flows)[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveTask(t models.Task) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now()
	*m.tasks = append(*m.tasks, t)
	return t.ID, nil
}

func (m *mockStore) GetTask(id string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range *m.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Task{}, ErrNotFound
}

func (m *mockStore) GetTasksByFlow(flowID string) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range *m.tasks {
		if t.FlowID == flowID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *mockStore) SaveFlowExecution(e models.FlowExecution) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	e.ID = uuid.NewString()
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	*m.flowExecs = append(*m.flowExecs, e)
	return e.ID, nil
}

func (m *mockStore) GetFlowExecution(id string) (models.FlowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range *m.flowExecs {
		if e.ID == id {
			return e, nil
		}
	}
	return models.FlowExecution{}, ErrNotFound
}

func (m *mockStore) UpdateFlowExecutionStatus(id string, status models.ExecutionStatus, result models.JSONMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return errors.New("transaction already committed")
	}
	for i, e := range *m.flowExecs {
		if e.ID == id {
			(*m.flowExecs)[i].Status = status
			if result != nil {
				(*m.flowExecs)[i].Result = result
			}
			if status.Terminal() && (*m.flowExecs)[i].CompletedAt == nil {
				now := time.Now()
				(*m.flowExecs)[i].CompletedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveTaskExecution(e models.TaskExecution) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	e.ID = uuid.NewString()
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	*m.taskExecs = append(*m.taskExecs, e)
	return e.ID, nil
}

func (m *mockStore) GetTaskExecutions(flowExecutionID string) ([]models.TaskExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TaskExecution
	for _, e := range *m.taskExecs {
		if e.FlowExecutionID == flowExecutionID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *mockStore) UpdateTaskExecutionStatus(id string, status models.ExecutionStatus, upd models.TaskExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return errors.New("transaction already committed")
	}
	for i, e := range *m.taskExecs {
		if e.ID == id {
			(*m.taskExecs)[i].Status = status
			(*m.taskExecs)[i].Output = upd.Output
			(*m.taskExecs)[i].TokensUsed = upd.TokensUsed
			(*m.taskExecs)[i].Cost = upd.Cost
			(*m.taskExecs)[i].Duration = upd.Duration
			(*m.taskExecs)[i].ErrorMsg = upd.ErrorMsg
			if status.Terminal() && (*m.taskExecs)[i].CompletedAt == nil {
				now := time.Now()
				(*m.taskExecs)[i].CompletedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveWorkflowExecution(e models.WorkflowExecution) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	e.ID = uuid.NewString()
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	*m.workflowExecs = append(*m.workflowExecs, e)
	return e.ID, nil
}

func (m *mockStore) GetWorkflowExecution(id string) (models.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range *m.workflowExecs {
		if e.ID == id {
			return e, nil
		}
	}
	return models.WorkflowExecution{}, ErrNotFound
}

func (m *mockStore) UpdateWorkflowExecutionStatus(id string, status models.ExecutionStatus, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return errors.New("transaction already committed")
	}
	for i, e := range *m.workflowExecs {
		if e.ID == id {
			(*m.workflowExecs)[i].Status = status
			if result != "" {
				(*m.workflowExecs)[i].Result = result
			}
			if status.Terminal() && (*m.workflowExecs)[i].CompletedAt == nil {
				now := time.Now()
				(*m.workflowExecs)[i].CompletedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveAgentExecution(e models.AgentExecution) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	e.ID = uuid.NewString()
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	*m.agentExecs = append(*m.agentExecs, e)
	return e.ID, nil
}

func (m *mockStore) GetAgentExecutions(workflowExecutionID string) ([]models.AgentExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AgentExecution
	for _, e := range *m.agentExecs {
		if e.WorkflowExecutionID == workflowExecutionID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *mockStore) UpdateAgentExecutionStatus(id string, status models.ExecutionStatus, upd models.AgentExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return errors.New("transaction already committed")
	}
	for i, e := range *m.agentExecs {
		if e.ID == id {
			(*m.agentExecs)[i].Status = status
			(*m.agentExecs)[i].Output = upd.Output
			(*m.agentExecs)[i].TokensUsed = upd.TokensUsed
			(*m.agentExecs)[i].Cost = upd.Cost
			(*m.agentExecs)[i].ErrorMsg = upd.ErrorMsg
			if status.Terminal() && (*m.agentExecs)[i].CompletedAt == nil {
				now := time.Now()
				(*m.agentExecs)[i].CompletedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveExecutionStep(s models.ExecutionStep) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return "", errors.New("transaction already committed")
	}
	s.ID = uuid.NewString()
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	*m.executionSteps = append(*m.executionSteps, s)
	return s.ID, nil
}

func (m *mockStore) GetExecutionSteps(agentExecutionID string) ([]models.ExecutionStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExecutionStep
	for _, s := range *m.executionSteps {
		if s.AgentExecutionID == agentExecutionID {
			out = append(out, s)
		}
	}
	return out, nil
}
