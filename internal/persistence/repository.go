package persistence

import "grid-optimizer/internal/models"

// RunRepository defines the interface for optimization run persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB on disk or in memory)
// from the rest of the application.
type RunRepository interface {
	// SaveRun stores the run under its ID, replacing any previous version.
	SaveRun(run *models.OptimizationRun) error

	// LoadRun loads a run by ID.
	// If no run is found, it should return (nil, nil).
	LoadRun(id string) (*models.OptimizationRun, error)

	// ListRuns returns all stored runs, newest first.
	ListRuns() ([]*models.OptimizationRun, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
