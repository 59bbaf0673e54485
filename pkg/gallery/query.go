package gallery

import (
	"context"
	"sync"

	"github.com/opst/gallerysync/pkg/domain"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
)

// Query reads the gallery from the mirror.
type Query struct {
	db   kdb.Interface
	opts *options

	// guards opts.rand
	mux sync.Mutex
}

func NewQuery(db kdb.Interface, opts ...Option) *Query {
	return &Query{db: db, opts: newOptions(opts)}
}

// ListByWeek returns assets having week, in insertion order.
//
// Empty (not nil) is returned when there are no such assets.
func (q *Query) ListByWeek(ctx context.Context, week domain.Week) ([]domain.Asset, error) {
	return q.db.Find(ctx, &week)
}

// ListAll returns all assets, in insertion order.
func (q *Query) ListAll(ctx context.Context) ([]domain.Asset, error) {
	return q.db.Find(ctx, nil)
}

// DistinctWeeks returns weeks used in the mirror, sorted ascending.
func (q *Query) DistinctWeeks(ctx context.Context) ([]domain.Week, error) {
	return q.db.Weeks(ctx)
}

// PickBackground picks an asset uniformly at random from the whole mirror,
// regardless of week.
//
// # Returns
//
// - domain.Asset: picked asset.
//
// - bool: false if the mirror is empty. It is not an error.
//
// - error
func (q *Query) PickBackground(ctx context.Context) (domain.Asset, bool, error) {
	var picked domain.Asset
	found := false

	// counting and picking see the same mirror in a transaction.
	err := q.db.Transaction(ctx, func(ctx context.Context, tx kdb.Interface) error {
		count, err := tx.Count(ctx)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}

		q.mux.Lock()
		nth := q.opts.rand.IntN(count)
		q.mux.Unlock()

		a, err := tx.Nth(ctx, nth)
		if err != nil {
			return err
		}
		picked, found = a, true
		return nil
	})
	if err != nil {
		return domain.Asset{}, false, err
	}
	return picked, found, nil
}
