// Package testsuite provides behaviour tests which every asset mirror should pass.
package testsuite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/gallerysync/pkg/domain"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
	"github.com/opst/gallerysync/pkg/utils/cmp"
	"github.com/opst/gallerysync/pkg/utils/try"
)

// Factory creates an empty mirror, which is valid while t runs.
type Factory func(t *testing.T) kdb.Interface

func remote(id string, createdAt string) domain.RemoteAsset {
	return domain.RemoteAsset{
		ExternalId: id,
		FileName:   id + ".png",
		Url:        "//images.invalid/" + id + ".png",
		CreatedAt:  try.To(time.Parse(time.RFC3339, createdAt)).OrDefault(time.Time{}),
	}
}

func externalIdsOf(assets []domain.Asset) []string {
	ret := make([]string, 0, len(assets))
	for _, a := range assets {
		ret = append(ret, a.ExternalId)
	}
	return ret
}

// Run runs all behaviour tests against mirrors created by newMirror.
func Run(t *testing.T, newMirror Factory) {
	t.Run("InsertMany", func(t *testing.T) { insertMany(t, newMirror) })
	t.Run("DeleteMany", func(t *testing.T) { deleteMany(t, newMirror) })
	t.Run("UpdateWeekWhereNull", func(t *testing.T) { updateWeekWhereNull(t, newMirror) })
	t.Run("Find and Weeks", func(t *testing.T) { findAndWeeks(t, newMirror) })
	t.Run("Count and Nth", func(t *testing.T) { countAndNth(t, newMirror) })
	t.Run("Transaction", func(t *testing.T) { transaction(t, newMirror) })
}

func insertMany(t *testing.T, newMirror Factory) {
	t.Run("it inserts assets in the given order, without week", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)

		given := []domain.RemoteAsset{
			remote("ext-b", "2022-10-11T12:13:14Z"),
			remote("ext-a", "2022-10-12T12:13:14Z"),
			remote("ext-c", "2022-10-13T12:13:14+09:00"),
		}
		n := try.To(testee.InsertMany(ctx, given)).OrFatal(t)
		if n != len(given) {
			t.Errorf("inserted count: got %d, want %d", n, len(given))
		}

		got := try.To(testee.Find(ctx, nil)).OrFatal(t)
		if !cmp.SliceEqWith(got, given, func(a domain.Asset, r domain.RemoteAsset) bool {
			return a.ExternalId == r.ExternalId &&
				a.Name == r.FileName &&
				a.Url == r.Url &&
				a.CreatedAt.Equal(r.CreatedAt) &&
				a.Week == nil
		}) {
			t.Errorf("unmatch assets:\n===actual===\n%+v\n===expected===\n%+v", got, given)
		}
		for nth := 1; nth < len(got); nth++ {
			if got[nth].Id <= got[nth-1].Id {
				t.Errorf("ids are not increasing: %+v", got)
			}
		}

		ids := try.To(testee.ExternalIds(ctx)).OrFatal(t)
		if want := []string{"ext-b", "ext-a", "ext-c"}; !cmp.SliceEq(ids, want) {
			t.Errorf("external ids: got %v, want %v", ids, want)
		}
	})

	t.Run("it skips assets already mirrored", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)

		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-1", "2022-10-11T12:13:14Z")})).OrFatal(t)
		try.To(testee.UpdateWeekWhereNull(ctx, "1")).OrFatal(t)

		changed := remote("ext-1", "2023-01-01T00:00:00Z")
		changed.FileName = "renamed.png"
		n := try.To(testee.InsertMany(ctx, []domain.RemoteAsset{
			changed,
			remote("ext-2", "2022-10-12T12:13:14Z"),
			remote("ext-2", "2022-10-13T12:13:14Z"),
		})).OrFatal(t)
		if n != 1 {
			t.Errorf("inserted count: got %d, want 1", n)
		}

		got := try.To(testee.Find(ctx, nil)).OrFatal(t)
		if want := []string{"ext-1", "ext-2"}; !cmp.SliceEq(externalIdsOf(got), want) {
			t.Fatalf("external ids: got %v, want %v", externalIdsOf(got), want)
		}
		if got[0].Name != "ext-1.png" || got[0].Week == nil || *got[0].Week != "1" {
			t.Errorf("existing asset is modified: %+v", got[0])
		}
		if !got[1].CreatedAt.Equal(remote("ext-2", "2022-10-12T12:13:14Z").CreatedAt) {
			t.Errorf("not the first occurrence is inserted: %+v", got[1])
		}
	})

	t.Run("it accepts empty input", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)
		if n := try.To(testee.InsertMany(ctx, nil)).OrFatal(t); n != 0 {
			t.Errorf("inserted count: got %d, want 0", n)
		}
	})
}

func deleteMany(t *testing.T, newMirror Factory) {
	t.Run("it deletes assets by external id, ignoring unknown ids", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)
		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{
			remote("ext-1", "2022-10-11T12:13:14Z"),
			remote("ext-2", "2022-10-12T12:13:14Z"),
			remote("ext-3", "2022-10-13T12:13:14Z"),
		})).OrFatal(t)

		n := try.To(testee.DeleteMany(ctx, []string{"ext-3", "ext-1", "ext-unknown"})).OrFatal(t)
		if n != 2 {
			t.Errorf("deleted count: got %d, want 2", n)
		}
		ids := try.To(testee.ExternalIds(ctx)).OrFatal(t)
		if want := []string{"ext-2"}; !cmp.SliceEq(ids, want) {
			t.Errorf("external ids: got %v, want %v", ids, want)
		}
	})

	t.Run("it accepts empty input", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)
		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-1", "2022-10-11T12:13:14Z")})).OrFatal(t)
		if n := try.To(testee.DeleteMany(ctx, []string{})).OrFatal(t); n != 0 {
			t.Errorf("deleted count: got %d, want 0", n)
		}
		if c := try.To(testee.Count(ctx)).OrFatal(t); c != 1 {
			t.Errorf("count: got %d, want 1", c)
		}
	})

	t.Run("a re-inserted asset gets a new id and no week", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)
		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-1", "2022-10-11T12:13:14Z")})).OrFatal(t)
		try.To(testee.UpdateWeekWhereNull(ctx, "1")).OrFatal(t)
		before := try.To(testee.Nth(ctx, 0)).OrFatal(t)

		try.To(testee.DeleteMany(ctx, []string{"ext-1"})).OrFatal(t)
		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-1", "2022-10-11T12:13:14Z")})).OrFatal(t)

		after := try.To(testee.Nth(ctx, 0)).OrFatal(t)
		if after.Id == before.Id || after.Week != nil {
			t.Errorf("re-inserted asset is not fresh: before=%+v, after=%+v", before, after)
		}
	})
}

func updateWeekWhereNull(t *testing.T, newMirror Factory) {
	t.Run("it tags only untagged assets: first write wins", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)
		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{
			remote("ext-1", "2022-10-11T12:13:14Z"),
			remote("ext-2", "2022-10-12T12:13:14Z"),
		})).OrFatal(t)

		if n := try.To(testee.UpdateWeekWhereNull(ctx, "W1")).OrFatal(t); n != 2 {
			t.Errorf("updated count: got %d, want 2", n)
		}
		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-3", "2022-10-13T12:13:14Z")})).OrFatal(t)

		if n := try.To(testee.UpdateWeekWhereNull(ctx, "W2")).OrFatal(t); n != 1 {
			t.Errorf("updated count: got %d, want 1", n)
		}
		if n := try.To(testee.UpdateWeekWhereNull(ctx, "W3")).OrFatal(t); n != 0 {
			t.Errorf("updated count: got %d, want 0", n)
		}

		got := try.To(testee.Find(ctx, nil)).OrFatal(t)
		want := map[string]domain.Week{"ext-1": "W1", "ext-2": "W1", "ext-3": "W2"}
		for _, a := range got {
			if a.Week == nil || *a.Week != want[a.ExternalId] {
				t.Errorf("week of %s: got %v, want %s", a.ExternalId, a.Week, want[a.ExternalId])
			}
		}
	})

	t.Run("it is no-op on empty mirror", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)
		if n := try.To(testee.UpdateWeekWhereNull(ctx, "W1")).OrFatal(t); n != 0 {
			t.Errorf("updated count: got %d, want 0", n)
		}
	})
}

func findAndWeeks(t *testing.T, newMirror Factory) {
	ctx := context.Background()
	testee := newMirror(t)

	try.To(testee.InsertMany(ctx, []domain.RemoteAsset{
		remote("ext-1", "2022-10-11T12:13:14Z"),
		remote("ext-2", "2022-10-12T12:13:14Z"),
	})).OrFatal(t)
	try.To(testee.UpdateWeekWhereNull(ctx, "2")).OrFatal(t)
	try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-3", "2022-10-13T12:13:14Z")})).OrFatal(t)
	try.To(testee.UpdateWeekWhereNull(ctx, "10")).OrFatal(t)
	try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-4", "2022-10-14T12:13:14Z")})).OrFatal(t)

	t.Run("without week, it returns all assets", func(t *testing.T) {
		got := try.To(testee.Find(ctx, nil)).OrFatal(t)
		if want := []string{"ext-1", "ext-2", "ext-3", "ext-4"}; !cmp.SliceEq(externalIdsOf(got), want) {
			t.Errorf("got %v, want %v", externalIdsOf(got), want)
		}
	})

	t.Run("with week, it returns assets having the week", func(t *testing.T) {
		w := domain.Week("2")
		got := try.To(testee.Find(ctx, &w)).OrFatal(t)
		if want := []string{"ext-1", "ext-2"}; !cmp.SliceEq(externalIdsOf(got), want) {
			t.Errorf("got %v, want %v", externalIdsOf(got), want)
		}
	})

	t.Run("with unknown week, it returns empty", func(t *testing.T) {
		w := domain.Week("99")
		got := try.To(testee.Find(ctx, &w)).OrFatal(t)
		if got == nil || len(got) != 0 {
			t.Errorf("got %#v, want empty slice", got)
		}
	})

	t.Run("weeks are distinct, sorted, and exclude untagged", func(t *testing.T) {
		got := try.To(testee.Weeks(ctx)).OrFatal(t)
		if want := []domain.Week{"10", "2"}; !cmp.SliceEq(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("weeks of empty mirror is empty", func(t *testing.T) {
		got := try.To(newMirror(t).Weeks(ctx)).OrFatal(t)
		if len(got) != 0 {
			t.Errorf("got %v, want empty", got)
		}
	})
}

func countAndNth(t *testing.T, newMirror Factory) {
	ctx := context.Background()
	testee := newMirror(t)

	if c := try.To(testee.Count(ctx)).OrFatal(t); c != 0 {
		t.Errorf("count of empty mirror: got %d", c)
	}
	if _, err := testee.Nth(ctx, 0); !errors.Is(err, domain.ErrMissing) {
		t.Errorf("Nth on empty mirror: got %v, want ErrMissing", err)
	}

	try.To(testee.InsertMany(ctx, []domain.RemoteAsset{
		remote("ext-1", "2022-10-11T12:13:14Z"),
		remote("ext-2", "2022-10-12T12:13:14Z"),
		remote("ext-3", "2022-10-13T12:13:14Z"),
	})).OrFatal(t)
	try.To(testee.DeleteMany(ctx, []string{"ext-2"})).OrFatal(t)

	if c := try.To(testee.Count(ctx)).OrFatal(t); c != 2 {
		t.Errorf("count: got %d, want 2", c)
	}
	for nth, want := range []string{"ext-1", "ext-3"} {
		got := try.To(testee.Nth(ctx, nth)).OrFatal(t)
		if got.ExternalId != want {
			t.Errorf("Nth(%d): got %s, want %s", nth, got.ExternalId, want)
		}
	}
	if _, err := testee.Nth(ctx, 2); !errors.Is(err, domain.ErrMissing) {
		t.Errorf("Nth out of range: got %v, want ErrMissing", err)
	}
}

func transaction(t *testing.T, newMirror Factory) {
	t.Run("changes are committed when f succeeds", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)
		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-1", "2022-10-11T12:13:14Z")})).OrFatal(t)

		err := testee.Transaction(ctx, func(ctx context.Context, tx kdb.Interface) error {
			if _, err := tx.DeleteMany(ctx, []string{"ext-1"}); err != nil {
				return err
			}
			_, err := tx.InsertMany(ctx, []domain.RemoteAsset{remote("ext-2", "2022-10-12T12:13:14Z")})
			return err
		})
		if err != nil {
			t.Fatal(err)
		}

		ids := try.To(testee.ExternalIds(ctx)).OrFatal(t)
		if want := []string{"ext-2"}; !cmp.SliceEq(ids, want) {
			t.Errorf("external ids: got %v, want %v", ids, want)
		}
	})

	t.Run("changes are discarded when f fails", func(t *testing.T) {
		ctx := context.Background()
		testee := newMirror(t)
		try.To(testee.InsertMany(ctx, []domain.RemoteAsset{remote("ext-1", "2022-10-11T12:13:14Z")})).OrFatal(t)

		expectedErr := errors.New("fake error")
		err := testee.Transaction(ctx, func(ctx context.Context, tx kdb.Interface) error {
			if _, err := tx.DeleteMany(ctx, []string{"ext-1"}); err != nil {
				return err
			}
			if _, err := tx.InsertMany(ctx, []domain.RemoteAsset{remote("ext-2", "2022-10-12T12:13:14Z")}); err != nil {
				return err
			}
			if ids := try.To(tx.ExternalIds(ctx)).OrFatal(t); !cmp.SliceEq(ids, []string{"ext-2"}) {
				t.Errorf("changes are not visible in transaction: %v", ids)
			}
			return expectedErr
		})
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}

		ids := try.To(testee.ExternalIds(ctx)).OrFatal(t)
		if want := []string{"ext-1"}; !cmp.SliceEq(ids, want) {
			t.Errorf("external ids: got %v, want %v", ids, want)
		}
	})
}
