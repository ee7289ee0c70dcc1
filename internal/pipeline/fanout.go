package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
)

// NamedLoader labels a loader for error reporting.
type NamedLoader struct {
	Name   string
	Loader BatchLoader
}

// FanOut delivers every batch to each loader in turn. A batch fails if any
// loader fails, so a retry may deliver it twice to the loaders that succeeded.
type FanOut []NamedLoader

func (f FanOut) LoadBatch(ctx context.Context, obs []domain.Observation) error {
	var errs []error
	for _, l := range f {
		if err := l.Loader.LoadBatch(ctx, obs); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.Name, err))
		}
	}
	return errors.Join(errs...)
}
