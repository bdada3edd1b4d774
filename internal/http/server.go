package http

import (
	"encoding/json"
	"net/http"

	"github.com/G159w/chat-bot-cordinator/internal/log"
	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/G159w/chat-bot-cordinator/pkg/service"
	"github.com/G159w/chat-bot-cordinator/pkg/storage"
	"github.com/pkg/errors"
)

// Server is the thin HTTP surface over the services. Authentication is an
// external concern; the caller identity arrives in the X-User-ID header set
// by the fronting proxy.
type Server struct {
	crews     *service.CrewService
	flows     *service.FlowService
	workflows *service.WorkflowService
}

func NewServer(store storage.Store) *Server {
	logger := log.GetLogger()
	return &Server{
		crews:     service.NewCrewService(store, logger),
		flows:     service.NewFlowService(store, nil, logger),
		workflows: service.NewWorkflowService(store, nil, logger),
	}
}

// Routes registers all handlers on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /crews", s.handleCreateCrew)
	mux.HandleFunc("GET /crews", s.handleListCrews)
	mux.HandleFunc("POST /flows", s.handleCreateFlow)
	mux.HandleFunc("POST /flows/{id}/tasks", s.handleCreateTask)
	mux.HandleFunc("POST /flows/{id}/execute", s.handleExecuteFlow)
	mux.HandleFunc("POST /workflows/execute", s.handleExecuteWorkflow)
	mux.HandleFunc("GET /executions/flow/{id}", s.handleFlowExecutionStatus)
	mux.HandleFunc("GET /executions/flow/{id}/details", s.handleFlowExecutionDetails)
	mux.HandleFunc("GET /executions/workflow/{id}", s.handleWorkflowExecutionStatus)
	mux.HandleFunc("GET /executions/workflow/{id}/details", s.handleWorkflowExecutionDetails)
}

func StartServer(port string, store storage.Store) error {
	srv := NewServer(store)
	mux := http.NewServeMux()
	srv.Routes(mux)
	log.GetLogger().Infof("Starting coordinator server on :%s", port)
	return http.ListenAndServe(":"+port, mux)
}

// Wait joins all background runs. Called on shutdown so detached executions
// can finish before the process exits.
func (s *Server) Wait() {
	s.flows.Wait()
	s.workflows.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps service errors onto HTTP statuses: not-found kinds to 404,
// validation kinds to 400, anything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrCrewNotFound),
		errors.Is(err, service.ErrFlowNotFound),
		errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrExecutionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrFlowInactive),
		errors.Is(err, service.ErrNoTasksInFlow),
		errors.Is(err, service.ErrNoAgentsInCrew),
		errors.Is(err, service.ErrInputRequired),
		errors.Is(err, service.ErrOnlyOneCoordinator):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.GetLogger().Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createCrewRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Agents      []models.Agent `json:"agents"`
}

func (s *Server) handleCreateCrew(w http.ResponseWriter, r *http.Request) {
	var req createCrewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id, err := s.crews.CreateCrew(userID(r), req.Name, req.Description, req.Agents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListCrews(w http.ResponseWriter, r *http.Request) {
	crews, err := s.crews.ListCrews(userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, crews)
}

type createFlowRequest struct {
	CrewID      string `json:"crew_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var req createFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id, err := s.flows.CreateFlow(userID(r), req.CrewID, req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	task.FlowID = r.PathValue("id")
	id, err := s.flows.CreateTask(userID(r), task)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type executeFlowRequest struct {
	Input models.JSONMap `json:"input"`
}

func (s *Server) handleExecuteFlow(w http.ResponseWriter, r *http.Request) {
	var req executeFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	executionID, err := s.flows.ExecuteFlow(userID(r), r.PathValue("id"), req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": executionID})
}

type executeWorkflowRequest struct {
	CrewID string `json:"crew_id"`
	Input  string `json:"input"`
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req executeWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	executionID, err := s.workflows.ExecuteWorkflow(userID(r), req.CrewID, req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": executionID})
}

func (s *Server) handleFlowExecutionStatus(w http.ResponseWriter, r *http.Request) {
	execution, err := s.flows.GetExecutionStatus(r.PathValue("id"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

func (s *Server) handleFlowExecutionDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.flows.GetExecutionDetails(r.PathValue("id"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleWorkflowExecutionStatus(w http.ResponseWriter, r *http.Request) {
	execution, err := s.workflows.GetExecutionStatus(r.PathValue("id"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

func (s *Server) handleWorkflowExecutionDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.workflows.GetExecutionDetails(r.PathValue("id"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
