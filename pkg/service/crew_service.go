package service

import (
	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/G159w/chat-bot-cordinator/pkg/storage"
	"github.com/pkg/errors"
)

// CrewService manages crew and agent definitions.
type CrewService struct {
	store  storage.Store
	logger Logger
}

func NewCrewService(store storage.Store, logger Logger) *CrewService {
	return &CrewService{store: store, logger: logger}
}

// CreateCrew creates a crew, optionally with its initial agents. At most one
// agent may be the coordinator.
func (s *CrewService) CreateCrew(userID, name, description string, agents []models.Agent) (crewID string, err error) {
	if name == "" {
		return "", errors.New("crew name cannot be empty")
	}
	coordinators := 0
	for _, a := range agents {
		if a.IsCoordinator {
			coordinators++
		}
	}
	if coordinators > 1 {
		return "", ErrOnlyOneCoordinator
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	crewID, err = txStore.SaveCrew(models.Crew{
		UserID:      userID,
		Name:        name,
		Description: description,
		IsActive:    true,
	})
	if err != nil {
		return "", err
	}
	for i, agent := range agents {
		agent.CrewID = crewID
		agent.Order = i
		if _, err = txStore.SaveAgent(agent); err != nil {
			return "", err
		}
	}
	s.logger.Infof("Created crew '%s' with ID %s and %d agents", name, crewID, len(agents))
	return crewID, nil
}

// AddAgent appends an agent to a crew the user owns. The agent's order is the
// current roster size.
func (s *CrewService) AddAgent(userID, crewID string, agent models.Agent) (string, error) {
	crew, err := s.store.GetCrew(crewID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrCrewNotFound
		}
		return "", err
	}
	if agent.IsCoordinator {
		for _, existing := range crew.Agents {
			if existing.IsCoordinator {
				return "", ErrOnlyOneCoordinator
			}
		}
	}
	agent.CrewID = crewID
	agent.Order = len(crew.Agents)
	id, err := s.store.SaveAgent(agent)
	if err != nil {
		return "", err
	}
	s.logger.Infof("Added agent '%s' to crew %s", agent.Name, crewID)
	return id, nil
}

// GetCrew fetches a crew with its agents.
func (s *CrewService) GetCrew(crewID, userID string) (models.Crew, error) {
	crew, err := s.store.GetCrew(crewID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Crew{}, ErrCrewNotFound
		}
		return models.Crew{}, err
	}
	return crew, nil
}

func (s *CrewService) ListCrews(userID string) ([]models.Crew, error) {
	return s.store.ListCrews(userID)
}

// DeleteCrew removes a crew the user owns. Deleting cascades to agents, flows
// and their execution records at the storage layer.
func (s *CrewService) DeleteCrew(crewID, userID string) error {
	if err := s.store.DeleteCrew(crewID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrCrewNotFound
		}
		return err
	}
	s.logger.Infof("Deleted crew %s", crewID)
	return nil
}
