package storage

import (
	"database/sql"
	"fmt"

	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/G159w/chat-bot-cordinator/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

// requireRow translates a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveCrew creates a crew and returns its generated id (no agents).
func (s *PostgresStore) SaveCrew(c models.Crew) (string, error) {
	var id string
	err := s.db.QueryRowx(
		"INSERT INTO crew (user_id, name, description, is_active) VALUES ($1, $2, $3, $4) RETURNING id",
		c.UserID, c.Name, c.Description, c.IsActive).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save crew: %w", err)
	}
	return id, nil
}

// GetCrew retrieves a crew owned by the user, including its agents.
func (s *PostgresStore) GetCrew(id, userID string) (models.Crew, error) {
	var crew models.Crew
	err := s.db.Get(&crew, "SELECT * FROM crew WHERE id = $1 AND user_id = $2", id, userID)
	if err == sql.ErrNoRows {
		return models.Crew{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Crew{}, err
	}
	agents, err := s.GetAgentsByCrew(id)
	if err != nil {
		return models.Crew{}, fmt.Errorf("get crew %s: %w", id, err)
	}
	crew.Agents = agents
	return crew, nil
}

func (s *PostgresStore) ListCrews(userID string) ([]models.Crew, error) {
	crews := []models.Crew{}
	err := s.db.Select(&crews, "SELECT * FROM crew WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	return crews, nil
}

func (s *PostgresStore) DeleteCrew(id, userID string) error {
	res, err := s.db.Exec("DELETE FROM crew WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveAgent(a models.Agent) (string, error) {
	var id string
	err := s.db.QueryRowx(`
		INSERT INTO agent (crew_id, name, role, description, instructions, model, temperature, is_coordinator, "order")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		a.CrewID, a.Name, a.Role, a.Description, a.Instructions, a.Model, a.Temperature, a.IsCoordinator, a.Order).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save agent: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetAgentsByCrew(crewID string) ([]models.Agent, error) {
	agents := []models.Agent{}
	err := s.db.Select(&agents, `SELECT * FROM agent WHERE crew_id = $1 ORDER BY "order", created_at`, crewID)
	if err != nil {
		return nil, err
	}
	return agents, nil
}

func (s *PostgresStore) SaveFlow(f models.Flow) (string, error) {
	var id string
	err := s.db.QueryRowx(
		"INSERT INTO flow (crew_id, name, description, is_active) VALUES ($1, $2, $3, $4) RETURNING id",
		f.CrewID, f.Name, f.Description, f.IsActive).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save flow: %w", err)
	}
	return id, nil
}

// GetFlow retrieves a flow by id, joining through the crew to enforce
// ownership.
func (s *PostgresStore) GetFlow(id, userID string) (models.Flow, error) {
	var flow models.Flow
	err := s.db.Get(&flow, `
		SELECT f.* FROM flow f
		INNER JOIN crew c ON f.crew_id = c.id
		WHERE f.id = $1 AND c.user_id = $2`, id, userID)
	if err == sql.ErrNoRows {
		return models.Flow{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Flow{}, err
	}
	return flow, nil
}

func (s *PostgresStore) ListFlowsByCrew(crewID string) ([]models.Flow, error) {
	flows := []models.Flow{}
	err := s.db.Select(&flows, "SELECT * FROM flow WHERE crew_id = $1 ORDER BY created_at DESC", crewID)
	if err != nil {
		return nil, err
	}
	return flows, nil
}

func (s *PostgresStore) UpdateFlow(id string, upd models.FlowUpdate) error {
	res, err := s.db.Exec(`
		UPDATE flow SET
			name = COALESCE($1, name),
			description = COALESCE($2, description),
			is_active = COALESCE($3, is_active),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $4`,
		upd.Name, upd.Description, upd.IsActive, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveTask(t models.Task) (string, error) {
	var id string
	err := s.db.QueryRowx(`
		INSERT INTO task (flow_id, name, description, task_type, config, "order")
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		t.FlowID, t.Name, t.Description, t.Type, t.Config, t.Order).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save task: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTask(id string) (models.Task, error) {
	var task models.Task
	err := s.db.Get(&task, "SELECT * FROM task WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// GetTasksByFlow returns the flow's tasks in execution order; ties on "order"
// keep insertion order.
func (s *PostgresStore) GetTasksByFlow(flowID string) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.db.Select(&tasks, `SELECT * FROM task WHERE flow_id = $1 ORDER BY "order", created_at`, flowID)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *PostgresStore) SaveFlowExecution(e models.FlowExecution) (string, error) {
	var id string
	err := s.db.QueryRowx(
		"INSERT INTO flow_execution (flow_id, user_id, input, status) VALUES ($1, $2, $3, $4) RETURNING id",
		e.FlowID, e.UserID, e.Input, e.Status).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save flow execution: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetFlowExecution(id string) (models.FlowExecution, error) {
	var execution models.FlowExecution
	err := s.db.Get(&execution, "SELECT * FROM flow_execution WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.FlowExecution{}, storage.ErrNotFound
	}
	if err != nil {
		return models.FlowExecution{}, err
	}
	return execution, nil
}

// UpdateFlowExecutionStatus sets the status and, on the first terminal
// transition, the completion timestamp.
func (s *PostgresStore) UpdateFlowExecutionStatus(id string, status models.ExecutionStatus, result models.JSONMap) error {
	res, err := s.db.Exec(`
		UPDATE flow_execution SET
			status = $1,
			result = COALESCE($2, result),
			completed_at = CASE WHEN $1 IN ('completed', 'failed') AND completed_at IS NULL THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = $3`,
		status, result, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) SaveTaskExecution(e models.TaskExecution) (string, error) {
	var id string
	err := s.db.QueryRowx(
		"INSERT INTO task_execution (flow_execution_id, task_id, input, status) VALUES ($1, $2, $3, $4) RETURNING id",
		e.FlowExecutionID, e.TaskID, e.Input, e.Status).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save task execution: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTaskExecutions(flowExecutionID string) ([]models.TaskExecution, error) {
	executions := []models.TaskExecution{}
	err := s.db.Select(&executions,
		"SELECT * FROM task_execution WHERE flow_execution_id = $1 ORDER BY started_at", flowExecutionID)
	if err != nil {
		return nil, err
	}
	return executions, nil
}

func (s *PostgresStore) UpdateTaskExecutionStatus(id string, status models.ExecutionStatus, upd models.TaskExecutionUpdate) error {
	res, err := s.db.Exec(`
		UPDATE task_execution SET
			status = $1,
			output = $2,
			tokens_used = $3,
			cost = $4,
			duration = $5,
			error_msg = $6,
			completed_at = CASE WHEN $1 IN ('completed', 'failed') AND completed_at IS NULL THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = $7`,
		status, upd.Output, upd.TokensUsed, upd.Cost, upd.Duration, upd.ErrorMsg, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) SaveWorkflowExecution(e models.WorkflowExecution) (string, error) {
	var id string
	err := s.db.QueryRowx(
		"INSERT INTO workflow_execution (crew_id, user_id, input, status, metadata) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		e.CrewID, e.UserID, e.Input, e.Status, e.Metadata).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save workflow execution: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetWorkflowExecution(id string) (models.WorkflowExecution, error) {
	var execution models.WorkflowExecution
	err := s.db.Get(&execution, "SELECT * FROM workflow_execution WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.WorkflowExecution{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowExecution{}, err
	}
	return execution, nil
}

func (s *PostgresStore) UpdateWorkflowExecutionStatus(id string, status models.ExecutionStatus, result string) error {
	res, err := s.db.Exec(`
		UPDATE workflow_execution SET
			status = $1,
			result = CASE WHEN $2 <> '' THEN $2 ELSE result END,
			completed_at = CASE WHEN $1 IN ('completed', 'failed') AND completed_at IS NULL THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = $3`,
		status, result, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) SaveAgentExecution(e models.AgentExecution) (string, error) {
	var id string
	err := s.db.QueryRowx(
		"INSERT INTO agent_execution (workflow_execution_id, agent_id, input, status) VALUES ($1, $2, $3, $4) RETURNING id",
		e.WorkflowExecutionID, e.AgentID, e.Input, e.Status).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save agent execution: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetAgentExecutions(workflowExecutionID string) ([]models.AgentExecution, error) {
	executions := []models.AgentExecution{}
	err := s.db.Select(&executions,
		"SELECT * FROM agent_execution WHERE workflow_execution_id = $1 ORDER BY started_at", workflowExecutionID)
	if err != nil {
		return nil, err
	}
	return executions, nil
}

func (s *PostgresStore) UpdateAgentExecutionStatus(id string, status models.ExecutionStatus, upd models.AgentExecutionUpdate) error {
	res, err := s.db.Exec(`
		UPDATE agent_execution SET
			status = $1,
			output = $2,
			tokens_used = $3,
			cost = $4,
			error_msg = $5,
			completed_at = CASE WHEN $1 IN ('completed', 'failed') AND completed_at IS NULL THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = $6`,
		status, upd.Output, upd.TokensUsed, upd.Cost, upd.ErrorMsg, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) SaveExecutionStep(step models.ExecutionStep) (string, error) {
	var id string
	err := s.db.QueryRowx(`
		INSERT INTO execution_step (agent_execution_id, step_type, input, output, metadata, duration)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		step.AgentExecutionID, step.StepType, step.Input, step.Output, step.Metadata, step.Duration).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save execution step: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetExecutionSteps(agentExecutionID string) ([]models.ExecutionStep, error) {
	steps := []models.ExecutionStep{}
	err := s.db.Select(&steps,
		"SELECT * FROM execution_step WHERE agent_execution_id = $1 ORDER BY timestamp", agentExecutionID)
	if err != nil {
		return nil, err
	}
	return steps, nil
}
