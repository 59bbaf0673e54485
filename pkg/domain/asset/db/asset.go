package db

import (
	"context"

	"github.com/opst/gallerysync/pkg/domain"
)

// Interface is the local mirror of the external asset catalog.
type Interface interface {
	// ExternalIds returns external ids of all assets in the mirror.
	//
	// # Returns
	//
	// - []string: external ids, in insertion order.
	//
	// - error
	ExternalIds(ctx context.Context) ([]string, error)

	// InsertMany inserts new assets without week.
	//
	// Assets are inserted in the order of the argument, so ids are increasing along it.
	// An asset whose external id is already in the mirror is skipped (and not counted).
	//
	// # Returns
	//
	// - int: number of inserted assets.
	//
	// - error
	InsertMany(ctx context.Context, assets []domain.RemoteAsset) (int, error)

	// DeleteMany deletes assets by external id. Unknown ids are ignored.
	//
	// # Returns
	//
	// - int: number of deleted assets.
	//
	// - error
	DeleteMany(ctx context.Context, externalIds []string) (int, error)

	// UpdateWeekWhereNull sets week on every asset which has no week yet.
	//
	// Assets already having week are left as they are.
	//
	// # Returns
	//
	// - int: number of updated assets.
	//
	// - error
	UpdateWeekWhereNull(ctx context.Context, week domain.Week) (int, error)

	// Find returns assets in insertion order.
	//
	// # Args
	//
	// - week: if not nil, only assets having this week are returned.
	// If nil, all assets are returned.
	//
	// # Returns
	//
	// - []domain.Asset: found assets. Empty (not nil) when nothing matches.
	//
	// - error
	Find(ctx context.Context, week *domain.Week) ([]domain.Asset, error)

	// Weeks returns distinct weeks in use, in ascending order.
	Weeks(ctx context.Context) ([]domain.Week, error)

	// Count returns number of assets in the mirror.
	Count(ctx context.Context) (int, error)

	// Nth returns the n-th (0-origin) asset in insertion order.
	//
	// If n is out of range, it returns an error wrapping domain.ErrMissing.
	Nth(ctx context.Context, n int) (domain.Asset, error)

	// Transaction runs f in a transaction.
	//
	// Changes made via the Interface passed to f are committed when f returns nil,
	// and discarded otherwise.
	// While f runs, other Transactions on the same mirror wait.
	//
	// # Returns
	//
	// - error: error caused by f, or by beginning/committing the transaction.
	Transaction(ctx context.Context, f func(context.Context, Interface) error) error
}

// SchemaInterface manages versions of the mirror's schema.
type SchemaInterface interface {
	// Version returns the schema version applied to the database.
	//
	// 0 means no schema is applied.
	Version(ctx context.Context) (int, error)

	// Latest returns the newest schema version known by this program.
	Latest() int

	// Upgrade applies schema versions newer than Version, up to Latest.
	Upgrade(ctx context.Context) error
}

// Store is a mirror backed by a database.
type Store interface {
	Interface

	Schema() SchemaInterface

	// Close releases connections to the database.
	Close() error
}
