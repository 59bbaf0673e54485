package gallery_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	testctx "github.com/opst/gallerysync/internal/testutils/context"
	"github.com/opst/gallerysync/pkg/domain"
	"github.com/opst/gallerysync/pkg/domain/asset"
	catmock "github.com/opst/gallerysync/pkg/domain/asset/catalog/mock"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
	"github.com/opst/gallerysync/pkg/domain/asset/db/inmemory"
	dbmock "github.com/opst/gallerysync/pkg/domain/asset/db/mock"
	"github.com/opst/gallerysync/pkg/domain/asset/db/sqlite"
	"github.com/opst/gallerysync/pkg/gallery"
	"github.com/opst/gallerysync/pkg/utils/cmp"
	"github.com/opst/gallerysync/pkg/utils/try"
)

// backends are mirrors which reconciliation is tested against.
var backends = map[string]func(t *testing.T) kdb.Interface{
	"inmemory": func(*testing.T) kdb.Interface { return inmemory.New() },
	"sqlite": func(t *testing.T) kdb.Interface {
		ctx := context.Background()
		m := try.To(sqlite.Open(ctx, filepath.Join(t.TempDir(), "mirror.db"))).OrFatal(t)
		t.Cleanup(func() { m.Close() })
		if err := m.Schema().Upgrade(ctx); err != nil {
			t.Fatal(err)
		}
		return m
	},
}

func remote(id string) domain.RemoteAsset {
	return domain.RemoteAsset{
		ExternalId: id,
		FileName:   id + ".png",
		Url:        "//images.invalid/" + id + ".png",
		CreatedAt:  time.Date(2022, 10, 11, 12, 13, 14, 0, time.UTC),
	}
}

// given describes an asset put into the mirror before the test.
type given struct {
	ExternalId string
	Week       domain.Week // "" means no week
}

// prepare puts assets into the mirror in order.
func prepare(t *testing.T, mirror kdb.Interface, assets ...given) {
	t.Helper()
	ctx := context.Background()
	for _, a := range assets {
		try.To(mirror.InsertMany(ctx, []domain.RemoteAsset{remote(a.ExternalId)})).OrFatal(t)
		if a.Week != "" {
			try.To(mirror.UpdateWeekWhereNull(ctx, a.Week)).OrFatal(t)
		}
	}
}

// observe reads the mirror in the form of given.
func observe(t *testing.T, mirror kdb.Interface) []given {
	t.Helper()
	assets := try.To(mirror.Find(context.Background(), nil)).OrFatal(t)
	ret := make([]given, 0, len(assets))
	for _, a := range assets {
		g := given{ExternalId: a.ExternalId}
		if a.Week != nil {
			g.Week = *a.Week
		}
		ret = append(ret, g)
	}
	return ret
}

func TestReconciler_Reconcile(t *testing.T) {
	type When struct {
		mirror  []given
		catalog []domain.RemoteAsset
	}
	type Then struct {
		report domain.ReconcileReport
		mirror []given
	}

	for name, newMirror := range backends {
		theory := func(when When, then Then) func(*testing.T) {
			return func(t *testing.T) {
				ctx := context.Background()
				mirror := newMirror(t)
				prepare(t, mirror, when.mirror...)
				testee := gallery.NewReconciler(asset.New(mirror, catmock.Returning(when.catalog...)))

				report := try.To(testee.Reconcile(ctx)).OrFatal(t)
				if report != then.report {
					t.Errorf("report: got %+v, want %+v", report, then.report)
				}
				if got := observe(t, mirror); !cmp.SliceContentEq(got, then.mirror) {
					t.Errorf("mirror:\n===actual===\n%+v\n===expected===\n%+v", got, then.mirror)
				}

				// once more: it should be no-op.
				report = try.To(testee.Reconcile(ctx)).OrFatal(t)
				if report != (domain.ReconcileReport{}) {
					t.Errorf("second pass is not no-op: %+v", report)
				}
				if got := observe(t, mirror); !cmp.SliceContentEq(got, then.mirror) {
					t.Errorf("mirror after second pass:\n===actual===\n%+v\n===expected===\n%+v", got, then.mirror)
				}
			}
		}

		t.Run(name, func(t *testing.T) {
			t.Run("assets gone are deleted, new ones are inserted, and known ones keep week", theory(
				When{
					mirror:  []given{{ExternalId: "1"}, {ExternalId: "2", Week: "1"}},
					catalog: []domain.RemoteAsset{remote("2"), remote("3")},
				},
				Then{
					report: domain.ReconcileReport{Added: 1, Removed: 1},
					mirror: []given{{ExternalId: "2", Week: "1"}, {ExternalId: "3"}},
				},
			))

			t.Run("empty mirror gets all assets without week", theory(
				When{
					catalog: []domain.RemoteAsset{remote("a"), remote("b"), remote("c")},
				},
				Then{
					report: domain.ReconcileReport{Added: 3},
					mirror: []given{{ExternalId: "a"}, {ExternalId: "b"}, {ExternalId: "c"}},
				},
			))

			t.Run("empty catalog drains the mirror", theory(
				When{
					mirror:  []given{{ExternalId: "a", Week: "1"}, {ExternalId: "b"}},
					catalog: []domain.RemoteAsset{},
				},
				Then{
					report: domain.ReconcileReport{Removed: 2},
					mirror: []given{},
				},
			))

			t.Run("duplicated ids in catalog are collapsed", theory(
				When{
					catalog: []domain.RemoteAsset{remote("a"), remote("b"), remote("a")},
				},
				Then{
					report: domain.ReconcileReport{Added: 2},
					mirror: []given{{ExternalId: "a"}, {ExternalId: "b"}},
				},
			))

			t.Run("mirror equal to catalog is not changed", theory(
				When{
					mirror:  []given{{ExternalId: "a", Week: "2"}, {ExternalId: "b", Week: "3"}},
					catalog: []domain.RemoteAsset{remote("b"), remote("a")},
				},
				Then{
					report: domain.ReconcileReport{},
					mirror: []given{{ExternalId: "a", Week: "2"}, {ExternalId: "b", Week: "3"}},
				},
			))
		})
	}

	t.Run("known assets are not updated even if the catalog changed them", func(t *testing.T) {
		ctx := context.Background()
		mirror := inmemory.New()
		prepare(t, mirror, given{ExternalId: "a", Week: "1"})
		before := try.To(mirror.Nth(ctx, 0)).OrFatal(t)

		changed := remote("a")
		changed.FileName = "renamed.png"
		changed.Url = "//images.invalid/renamed.png"
		testee := gallery.NewReconciler(asset.New(mirror, catmock.Returning(changed)))
		try.To(testee.Reconcile(ctx)).OrFatal(t)

		after := try.To(mirror.Nth(ctx, 0)).OrFatal(t)
		if !after.Equal(&before) {
			t.Errorf("asset is modified:\n===before===\n%+v\n===after===\n%+v", before, after)
		}
	})

	t.Run("new assets are inserted in the catalog order", func(t *testing.T) {
		ctx := context.Background()
		mirror := inmemory.New()
		testee := gallery.NewReconciler(asset.New(mirror, catmock.Returning(remote("z"), remote("x"), remote("y"))))
		try.To(testee.Reconcile(ctx)).OrFatal(t)

		got := try.To(mirror.ExternalIds(ctx)).OrFatal(t)
		if want := []string{"z", "x", "y"}; !cmp.SliceEq(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestReconciler_Failure(t *testing.T) {
	t.Run("when catalog is unavailable, it fails and the mirror is not changed", func(t *testing.T) {
		ctx := context.Background()
		mirror := inmemory.New()
		prepare(t, mirror, given{ExternalId: "a", Week: "1"}, given{ExternalId: "b"})
		before := mirror.Snapshot()

		catalog := catmock.NewCatalog()
		catalog.Impl.Fetch = func(context.Context) ([]domain.RemoteAsset, error) {
			return nil, errors.Join(domain.ErrSourceUnavailable, errors.New("status 503"))
		}
		testee := gallery.NewReconciler(asset.New(mirror, catalog))

		report, err := testee.Reconcile(ctx)
		if !errors.Is(err, domain.ErrSyncFailed) || !errors.Is(err, domain.ErrSourceUnavailable) {
			t.Errorf("unexpected error: %v", err)
		}
		if report != (domain.ReconcileReport{}) {
			t.Errorf("report with error: %+v", report)
		}
		if after := mirror.Snapshot(); !cmp.SliceEqWith(after, before, func(a, b domain.Asset) bool { return a.Equal(&b) }) {
			t.Errorf("mirror is changed:\n===before===\n%+v\n===after===\n%+v", before, after)
		}

		last, ok := testee.Last()
		if !ok || last.Succeeded() || !errors.Is(last.Err, domain.ErrSyncFailed) {
			t.Errorf("unexpected last status: %+v (ok = %v)", last, ok)
		}
	})

	t.Run("when updating mirror fails halfway, nothing is applied", func(t *testing.T) {
		ctx := context.Background()
		mirror := inmemory.New()
		prepare(t, mirror, given{ExternalId: "a", Week: "1"}, given{ExternalId: "b"})
		before := mirror.Snapshot()

		expectedErr := errors.New("fake error")
		db := dbmock.NewAssetInterface()
		db.Impl.Transaction = func(ctx context.Context, f func(context.Context, kdb.Interface) error) error {
			return mirror.Transaction(ctx, func(ctx context.Context, tx kdb.Interface) error {
				return f(ctx, &failingInsert{Interface: tx, err: expectedErr})
			})
		}
		testee := gallery.NewReconciler(asset.New(db, catmock.Returning(remote("b"), remote("c"))))

		_, err := testee.Reconcile(ctx)
		if !errors.Is(err, domain.ErrSyncFailed) || !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if after := mirror.Snapshot(); !cmp.SliceEqWith(after, before, func(a, b domain.Asset) bool { return a.Equal(&b) }) {
			t.Errorf("mirror is changed:\n===before===\n%+v\n===after===\n%+v", before, after)
		}
	})

	t.Run("cancelled context aborts the pass before the mirror is updated", func(t *testing.T) {
		mirror := inmemory.New()
		prepare(t, mirror, given{ExternalId: "a"})

		catalog := catmock.NewCatalog()
		catalog.Impl.Fetch = func(ctx context.Context) ([]domain.RemoteAsset, error) {
			<-ctx.Done()
			return nil, errors.Join(domain.ErrSourceUnavailable, ctx.Err())
		}
		testee := gallery.NewReconciler(asset.New(mirror, catalog))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := testee.Reconcile(ctx); !errors.Is(err, domain.ErrSyncFailed) {
			t.Errorf("unexpected error: %v", err)
		}
		if got := observe(t, mirror); len(got) != 1 {
			t.Errorf("mirror is changed: %+v", got)
		}
	})
}

type failingInsert struct {
	kdb.Interface
	err error
}

func (f *failingInsert) InsertMany(context.Context, []domain.RemoteAsset) (int, error) {
	return 0, f.err
}

func TestReconciler_Last(t *testing.T) {
	t.Run("before any pass, there is no status", func(t *testing.T) {
		testee := gallery.NewReconciler(asset.New(inmemory.New(), catmock.Returning()))
		if _, ok := testee.Last(); ok {
			t.Error("status exists before any pass")
		}
	})

	t.Run("it records the last pass", func(t *testing.T) {
		ctx := context.Background()
		clock := []time.Time{
			time.Date(2022, 10, 11, 12, 0, 0, 0, time.UTC),
			time.Date(2022, 10, 11, 12, 0, 3, 0, time.UTC),
		}
		tick := 0
		testee := gallery.NewReconciler(
			asset.New(inmemory.New(), catmock.Returning(remote("a"))),
			gallery.WithPassId(func() string { return "pass-1" }),
			gallery.WithClock(func() time.Time {
				t := clock[tick]
				tick += 1
				return t
			}),
		)
		try.To(testee.Reconcile(ctx)).OrFatal(t)

		got, ok := testee.Last()
		if !ok {
			t.Fatal("no status")
		}
		if got.PassId != "pass-1" ||
			!got.StartedAt.Equal(clock[0]) ||
			!got.FinishedAt.Equal(clock[1]) ||
			got.Report != (domain.ReconcileReport{Added: 1}) ||
			!got.Succeeded() {
			t.Errorf("unexpected status: %+v", got)
		}
	})
}

func TestReconciler_Concurrency(t *testing.T) {
	t.Run("concurrent calls share one pass", func(t *testing.T) {
		ctx, cancel := testctx.WithTest(context.Background(), t)
		defer cancel()
		entered := make(chan struct{})
		release := make(chan struct{})
		var fetched atomic.Int64

		catalog := catmock.NewCatalog()
		catalog.Impl.Fetch = func(context.Context) ([]domain.RemoteAsset, error) {
			if fetched.Add(1) == 1 {
				close(entered)
			}
			<-release
			return []domain.RemoteAsset{remote("a"), remote("b")}, nil
		}
		mirror := inmemory.New()
		testee := gallery.NewReconciler(asset.New(mirror, catalog))

		reports := make([]domain.ReconcileReport, 3)
		wg := new(sync.WaitGroup)
		for nth := range reports {
			wg.Add(1)
			go func() {
				defer wg.Done()
				reports[nth] = try.To(testee.Reconcile(ctx)).OrDefault(domain.ReconcileReport{Added: -1})
			}()
		}
		<-entered
		time.Sleep(50 * time.Millisecond) // let others join
		close(release)
		wg.Wait()

		if n := fetched.Load(); n != 1 {
			t.Errorf("catalog is fetched %d times", n)
		}
		for _, r := range reports {
			if r != (domain.ReconcileReport{Added: 2}) {
				t.Errorf("unexpected report: %+v", r)
			}
		}
		if got := try.To(mirror.Count(ctx)).OrFatal(t); got != 2 {
			t.Errorf("count: got %d, want 2", got)
		}
	})

	t.Run("when a caller is cancelled, other callers of the shared pass still get the report", func(t *testing.T) {
		ctx, cancel := testctx.WithTest(context.Background(), t)
		defer cancel()
		entered := make(chan struct{})
		release := make(chan struct{})
		var fetched atomic.Int64

		catalog := catmock.NewCatalog()
		catalog.Impl.Fetch = func(ctx context.Context) ([]domain.RemoteAsset, error) {
			if fetched.Add(1) == 1 {
				close(entered)
			}
			select {
			case <-ctx.Done():
				return nil, errors.Join(domain.ErrSourceUnavailable, ctx.Err())
			case <-release:
			}
			return []domain.RemoteAsset{remote("a"), remote("b")}, nil
		}
		mirror := inmemory.New()
		testee := gallery.NewReconciler(asset.New(mirror, catalog))

		first, cancelFirst := context.WithCancel(ctx)
		defer cancelFirst()
		firstErr := make(chan error, 1)
		go func() {
			_, err := testee.Reconcile(first)
			firstErr <- err
		}()
		<-entered

		type result struct {
			report domain.ReconcileReport
			err    error
		}
		second := make(chan result, 1)
		go func() {
			report, err := testee.Reconcile(ctx)
			second <- result{report: report, err: err}
		}()
		time.Sleep(50 * time.Millisecond) // let the second caller join

		cancelFirst()
		if err := <-firstErr; !errors.Is(err, domain.ErrSyncFailed) || !errors.Is(err, context.Canceled) {
			t.Errorf("first caller: unexpected error: %v", err)
		}

		close(release)
		got := <-second
		if got.err != nil {
			t.Fatalf("second caller: unexpected error: %v", got.err)
		}
		if got.report != (domain.ReconcileReport{Added: 2}) {
			t.Errorf("second caller: unexpected report: %+v", got.report)
		}
		if n := fetched.Load(); n != 1 {
			t.Errorf("catalog is fetched %d times", n)
		}
		if got := try.To(mirror.Count(ctx)).OrFatal(t); got != 2 {
			t.Errorf("count: got %d, want 2", got)
		}
	})

	t.Run("when all callers are cancelled, the shared pass is aborted and the next call starts a new pass", func(t *testing.T) {
		ctx, cancel := testctx.WithTest(context.Background(), t)
		defer cancel()
		aborted := make(chan struct{})
		var fetched atomic.Int64

		catalog := catmock.NewCatalog()
		catalog.Impl.Fetch = func(fctx context.Context) ([]domain.RemoteAsset, error) {
			if fetched.Add(1) == 1 {
				<-fctx.Done()
				close(aborted)
				return nil, errors.Join(domain.ErrSourceUnavailable, fctx.Err())
			}
			return []domain.RemoteAsset{remote("a")}, nil
		}
		mirror := inmemory.New()
		testee := gallery.NewReconciler(asset.New(mirror, catalog))

		short, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancelShort()
		if _, err := testee.Reconcile(short); !errors.Is(err, domain.ErrSyncFailed) {
			t.Errorf("unexpected error: %v", err)
		}
		<-aborted

		report := try.To(testee.Reconcile(ctx)).OrFatal(t)
		if report != (domain.ReconcileReport{Added: 1}) {
			t.Errorf("unexpected report: %+v", report)
		}
		if n := fetched.Load(); n != 2 {
			t.Errorf("catalog is fetched %d times", n)
		}
	})

	t.Run("sequential calls run separate passes", func(t *testing.T) {
		ctx := context.Background()
		catalog := catmock.Returning(remote("a"))
		testee := gallery.NewReconciler(asset.New(inmemory.New(), catalog))

		try.To(testee.Reconcile(ctx)).OrFatal(t)
		try.To(testee.Reconcile(ctx)).OrFatal(t)
		if catalog.Calls.Fetch != 2 {
			t.Errorf("catalog is fetched %d times", catalog.Calls.Fetch)
		}
	})
}
