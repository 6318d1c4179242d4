// Package store persists exported search results.
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Nao-Mk2/aws-log-browser/internal/errclass"
	"github.com/Nao-Mk2/aws-log-browser/internal/model"
)

// ErrNotFound is returned when an export does not exist.
var ErrNotFound = fmt.Errorf("export %w", errclass.ErrNotFound)

// Export is a saved event list together with the criteria that produced it.
type Export struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"createdAt"`
	Criteria  model.SearchCriteria `json:"criteria"`
	Events    []model.LogEvent     `json:"events"`
}

// Summary describes an export without its events.
type Summary struct {
	ID         string               `json:"id"`
	CreatedAt  time.Time            `json:"createdAt"`
	Criteria   model.SearchCriteria `json:"criteria"`
	EventCount int                  `json:"eventCount"`
}

// Store is implemented by the export backends. Implementations must be safe
// for concurrent use.
type Store interface {
	SaveExport(ctx context.Context, e *Export) error
	GetExport(ctx context.Context, id string) (*Export, error)
	// ListExports returns up to limit summaries, newest first. limit <= 0 means all.
	ListExports(ctx context.Context, limit int) ([]Summary, error)
	Close() error
}

// Config selects and locates the backend.
type Config struct {
	// Driver is "bolt" or "sqlite".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Open creates the store described by cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "bolt", "":
		log.Printf("Using bolt export store: %s", cfg.Path)
		return NewBoltStore(cfg.Path)
	case "sqlite":
		log.Printf("Using sqlite export store: %s", cfg.Path)
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver: %s (supported: bolt, sqlite)", cfg.Driver)
	}
}

// prepare assigns an ID and creation time to e when missing.
func prepare(e *Export) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

func summarize(e *Export) Summary {
	return Summary{ID: e.ID, CreatedAt: e.CreatedAt, Criteria: e.Criteria, EventCount: len(e.Events)}
}
