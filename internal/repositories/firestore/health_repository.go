package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/feastline/api/internal/platform/firestore"
)

// HealthRepository verifies Firestore connectivity for readiness probes.
type HealthRepository struct {
	provider *pfirestore.Provider
}

// NewHealthRepository constructs a Firestore-backed health repository.
func NewHealthRepository(provider *pfirestore.Provider) (*HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("health repository requires firestore provider")
	}
	return &HealthRepository{provider: provider}, nil
}

// Ping performs a lightweight read against the backend.
func (r *HealthRepository) Ping(ctx context.Context) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	// A single-document read keeps the probe cheap; missing is healthy.
	_, err = client.Collection("health").Doc("probe").Get(ctx)
	if err != nil {
		wrapped := pfirestore.WrapError("health.ping", err)
		var repoErr *pfirestore.Error
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return wrapped
	}
	return nil
}
