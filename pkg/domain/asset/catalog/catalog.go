package catalog

import (
	"context"

	"github.com/opst/gallerysync/pkg/domain"
)

// Interface is the external catalog of assets.
type Interface interface {
	// Fetch retrieves the full, current list of assets.
	//
	// # Returns
	//
	// - []domain.RemoteAsset: assets, in the order the catalog returned.
	// Empty (not nil) when the catalog has no assets.
	//
	// - error: wraps domain.ErrSourceUnavailable when the catalog cannot be read
	// or its response is malformed.
	Fetch(ctx context.Context) ([]domain.RemoteAsset, error)
}
