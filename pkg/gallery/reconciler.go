package gallery

import (
	"context"
	"fmt"
	"sync"

	"github.com/opst/gallerysync/pkg/domain"
	"github.com/opst/gallerysync/pkg/domain/asset"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
	"golang.org/x/sync/singleflight"
)

// Reconciler brings the mirror into agreement with the external catalog.
type Reconciler struct {
	assets asset.Interface
	opts   *options

	group singleflight.Group

	// guards flight and the calls of group.DoChan.
	fmux   sync.Mutex
	flight *flight

	mux  sync.Mutex
	last *domain.SyncStatus
}

const reconcileKey = "reconcile"

// flight is the context of a shared pass, cancelled when all of its callers have left.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewReconciler(assets asset.Interface, opts ...Option) *Reconciler {
	return &Reconciler{assets: assets, opts: newOptions(opts)}
}

// Reconcile runs a reconciliation pass.
//
// The pass fetches the catalog, then deletes assets missing in the catalog and
// inserts assets missing in the mirror, in a transaction.
// Assets on both sides are never modified, so their week is kept.
//
// If a pass is already running on this Reconciler, the caller waits for it and
// shares its result instead of starting a new one.
//
// Cancelling ctx returns the caller early. The shared pass keeps running while
// other callers wait for it, and its fetch is aborted when every caller has left.
// Once the mirror starts to be updated, the update is not cancelled.
//
// # Returns
//
// - domain.ReconcileReport: numbers of inserted and deleted assets.
//
// - error: wraps domain.ErrSyncFailed. When it is caused by the catalog,
// it also wraps domain.ErrSourceUnavailable. The mirror is not changed in either case.
func (r *Reconciler) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReconcileReport{}, fmt.Errorf("%w: %w", domain.ErrSyncFailed, context.Cause(ctx))
	}

	f, ch := r.join(ctx)
	defer r.leave(f)

	select {
	case res := <-ch:
		if res.Shared {
			r.opts.log.Infof("reconcile: the pass is shared with other callers")
		}
		if res.Err != nil {
			return domain.ReconcileReport{}, res.Err
		}
		report, _ := res.Val.(domain.ReconcileReport)
		return report, nil
	case <-ctx.Done():
		return domain.ReconcileReport{}, fmt.Errorf("%w: %w", domain.ErrSyncFailed, context.Cause(ctx))
	}
}

// join registers the caller to the running pass, or starts a new one.
//
// The pass runs on the context of the flight, not of any caller.
func (r *Reconciler) join(ctx context.Context) (*flight, <-chan singleflight.Result) {
	r.fmux.Lock()
	defer r.fmux.Unlock()

	if r.flight == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		r.flight = &flight{ctx: fctx, cancel: cancel}
	}
	f := r.flight
	f.waiters += 1

	ch := r.group.DoChan(reconcileKey, func() (interface{}, error) {
		report, err := r.pass(f.ctx)

		r.fmux.Lock()
		if r.flight == f {
			r.flight = nil
		}
		r.fmux.Unlock()
		return report, err
	})
	return f, ch
}

// leave unregisters the caller. When no one waits for the pass, it is cancelled.
func (r *Reconciler) leave(f *flight) {
	r.fmux.Lock()
	defer r.fmux.Unlock()

	f.waiters -= 1
	if 0 < f.waiters {
		return
	}
	f.cancel()
	if r.flight == f {
		r.flight = nil
		// later callers should not join the cancelled pass.
		r.group.Forget(reconcileKey)
	}
}

// Last returns the status of the last finished pass.
//
// false is returned if no pass has finished yet.
func (r *Reconciler) Last() (domain.SyncStatus, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.last == nil {
		return domain.SyncStatus{}, false
	}
	return *r.last, true
}

func (r *Reconciler) pass(ctx context.Context) (domain.ReconcileReport, error) {
	log := r.opts.log
	status := domain.SyncStatus{PassId: r.opts.passId(), StartedAt: r.opts.now()}
	log.Infof("reconcile[%s]: start", status.PassId)

	report, err := r.reconcile(ctx, status.PassId)

	status.FinishedAt = r.opts.now()
	status.Report = report
	status.Err = err
	r.mux.Lock()
	r.last = &status
	r.mux.Unlock()

	elapsed := status.FinishedAt.Sub(status.StartedAt)
	if err != nil {
		log.Errorf("reconcile[%s]: failed in %v: %+v", status.PassId, elapsed, err)
		return domain.ReconcileReport{}, err
	}
	log.Infof(
		"reconcile[%s]: done in %v: added = %d, removed = %d",
		status.PassId, elapsed, report.Added, report.Removed,
	)
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, passId string) (domain.ReconcileReport, error) {
	remote, err := r.assets.Catalog().Fetch(ctx)
	if err != nil {
		return domain.ReconcileReport{}, fmt.Errorf("%w: %w", domain.ErrSyncFailed, err)
	}
	remote, dup := distinct(remote)
	if 0 < dup {
		r.opts.log.Warnf("reconcile[%s]: catalog has %d duplicated ids. first ones are used", passId, dup)
	}

	var report domain.ReconcileReport
	err = r.assets.Database().Transaction(
		context.WithoutCancel(ctx),
		func(ctx context.Context, tx kdb.Interface) error {
			local, err := tx.ExternalIds(ctx)
			if err != nil {
				return err
			}

			inRemote := make(map[string]struct{}, len(remote))
			for _, ra := range remote {
				inRemote[ra.ExternalId] = struct{}{}
			}
			inLocal := make(map[string]struct{}, len(local))
			toDelete := []string{}
			for _, id := range local {
				inLocal[id] = struct{}{}
				if _, ok := inRemote[id]; !ok {
					toDelete = append(toDelete, id)
				}
			}
			toInsert := []domain.RemoteAsset{}
			for _, ra := range remote {
				if _, ok := inLocal[ra.ExternalId]; !ok {
					toInsert = append(toInsert, ra)
				}
			}

			removed, err := tx.DeleteMany(ctx, toDelete)
			if err != nil {
				return err
			}
			added, err := tx.InsertMany(ctx, toInsert)
			if err != nil {
				return err
			}
			report = domain.ReconcileReport{Added: added, Removed: removed}
			return nil
		},
	)
	if err != nil {
		return domain.ReconcileReport{}, fmt.Errorf("%w: %w", domain.ErrSyncFailed, err)
	}
	return report, nil
}

// distinct drops assets whose external id appeared before.
//
// # Returns
//
// - []domain.RemoteAsset: assets, keeping the first occurrence of each id.
//
// - int: number of dropped assets.
func distinct(assets []domain.RemoteAsset) ([]domain.RemoteAsset, int) {
	seen := make(map[string]struct{}, len(assets))
	ret := make([]domain.RemoteAsset, 0, len(assets))
	for _, a := range assets {
		if _, ok := seen[a.ExternalId]; ok {
			continue
		}
		seen[a.ExternalId] = struct{}{}
		ret = append(ret, a)
	}
	return ret, len(assets) - len(ret)
}
