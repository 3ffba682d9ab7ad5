package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ladiesman540/crane-platform/internal/store"
)

type SensorLookup interface {
	SensorByAddress(ctx context.Context, addr string) (*store.SensorContext, error)
}

// Resolver maps a hardware address to the registered sensor and its tenant.
type Resolver struct {
	lookup SensorLookup
}

func NewResolver(lookup SensorLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

func (r *Resolver) ResolveByAddress(ctx context.Context, addr string) (*store.SensorContext, error) {
	sc, err := r.lookup.SensorByAddress(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve sensor %s: %w", addr, err)
	}
	return sc, nil
}
