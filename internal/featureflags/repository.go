package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when no value is stored for a key.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores flag values.
type Repository interface {
	Get(ctx context.Context, key string) (Flag, error)

	// List returns every stored flag, sorted by key.
	List(ctx context.Context) ([]Flag, error)

	// Upsert writes flags in one transaction.
	Upsert(ctx context.Context, flags ...Flag) error
}
