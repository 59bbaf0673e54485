package gallery

import (
	"context"
	"sync"

	"github.com/opst/gallerysync/pkg/domain"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
)

// WeekTagger assigns a week to assets which have no week yet.
type WeekTagger struct {
	db   kdb.Interface
	opts *options
	mux  sync.Mutex
}

func NewWeekTagger(db kdb.Interface, opts ...Option) *WeekTagger {
	return &WeekTagger{db: db, opts: newOptions(opts)}
}

// TagUntagged sets week to all assets having no week, at once.
//
// Assets which already have a week are not changed: the first write wins.
// The week is not validated.
//
// # Returns
//
// - int: number of tagged assets.
//
// - error
func (w *WeekTagger) TagUntagged(ctx context.Context, week domain.Week) (int, error) {
	w.mux.Lock()
	defer w.mux.Unlock()

	n, err := w.db.UpdateWeekWhereNull(ctx, week)
	if err != nil {
		w.opts.log.Errorf("tagging week %q: %+v", week, err)
		return 0, err
	}
	w.opts.log.Infof("tagged %d assets with week %q", n, week)
	return n, nil
}
