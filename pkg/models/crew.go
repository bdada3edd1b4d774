package models

import "time"

// Crew is a user-authored roster of agents. One agent may be designated as the
// coordinator; it produces the task plan the other agents execute.
type Crew struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	Agents      []Agent   `json:"agents,omitempty" db:"-"` // populated at read time
}

// Agent is one member of a crew.
type Agent struct {
	ID            string    `json:"id" db:"id"`
	CrewID        string    `json:"crew_id" db:"crew_id"`
	Name          string    `json:"name" db:"name"`
	Role          string    `json:"role" db:"role"`
	Description   string    `json:"description,omitempty" db:"description"`
	Instructions  string    `json:"instructions" db:"instructions"`
	Model         string    `json:"model" db:"model"`
	Temperature   int       `json:"temperature" db:"temperature"` // percent, 70 == 0.7
	IsCoordinator bool      `json:"is_coordinator" db:"is_coordinator"`
	Order         int       `json:"order" db:"order"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
