// Package sundaeregistry keeps the list of presentations that have been
// opened, one entry per normalized key.
package sundaeregistry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SundaeSwap-finance/sundae-slides/sundae-registry/presentationdao"
	"github.com/rs/zerolog"
)

// AddResult reports the outcome of AddEntry.
type AddResult string

const (
	Added         AddResult = "ok"
	AlreadyExists AddResult = "already exists"
)

// Store persists registry entries.
type Store interface {
	Insert(ctx context.Context, title, slug string) (presentationdao.Entry, error)
	List(ctx context.Context) ([]presentationdao.Entry, error)
}

// Registry serializes writes to the presentation store.
type Registry struct {
	store  Store
	logger zerolog.Logger

	mu sync.Mutex
}

func New(store Store, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// AddEntry registers title under key. Registering a key twice is not an
// error; the second call reports AlreadyExists and leaves the first title in
// place.
func (r *Registry) AddEntry(ctx context.Context, title, key string) (AddResult, error) {
	if key == "" {
		return "", fmt.Errorf("presentation key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.store.Insert(ctx, title, key)
	if err != nil {
		if errors.Is(err, presentationdao.ErrAlreadyExists) {
			return AlreadyExists, nil
		}
		return "", fmt.Errorf("failed to add presentation %v: %w", key, err)
	}

	r.logger.Info().
		Int64("number", entry.Number).
		Str("title", title).
		Str("key", key).
		Msg("registered presentation")
	return Added, nil
}

// Entries returns every registered presentation ordered by number.
func (r *Registry) Entries(ctx context.Context) ([]presentationdao.Entry, error) {
	return r.store.List(ctx)
}
