// Package inmemory provides the asset mirror which lives only in process memory.
//
// It is for tests and for trying the gallery out without a database.
package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/opst/gallerysync/pkg/domain"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
)

type state struct {
	lastId int64
	assets []domain.Asset
}

func (s *state) clone() *state {
	return &state{lastId: s.lastId, assets: slices.Clone(s.assets)}
}

type Mirror struct {
	mux   sync.Mutex
	state *state
}

var _ kdb.Store = &Mirror{}

// New creates an empty mirror.
func New() *Mirror {
	return &Mirror{state: &state{}}
}

// Seed puts assets into the mirror as they are, including id and week.
//
// It is for preparing test fixtures. Later inserts get ids greater than any seeded one.
func (m *Mirror) Seed(assets ...domain.Asset) *Mirror {
	m.mux.Lock()
	defer m.mux.Unlock()
	for _, a := range assets {
		m.state.assets = append(m.state.assets, a)
		if m.state.lastId < a.Id {
			m.state.lastId = a.Id
		}
	}
	slices.SortStableFunc(m.state.assets, func(a, b domain.Asset) int {
		return cmp.Compare(a.Id, b.Id)
	})
	return m
}

// Snapshot returns a copy of all assets.
func (m *Mirror) Snapshot() []domain.Asset {
	m.mux.Lock()
	defer m.mux.Unlock()
	return slices.Clone(m.state.assets)
}

func (m *Mirror) locked(f func(*view) error) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	return f(&view{state: m.state})
}

func (m *Mirror) ExternalIds(ctx context.Context) ([]string, error) {
	var ret []string
	err := m.locked(func(v *view) (err error) {
		ret, err = v.ExternalIds(ctx)
		return
	})
	return ret, err
}

func (m *Mirror) InsertMany(ctx context.Context, assets []domain.RemoteAsset) (int, error) {
	var n int
	err := m.locked(func(v *view) (err error) {
		n, err = v.InsertMany(ctx, assets)
		return
	})
	return n, err
}

func (m *Mirror) DeleteMany(ctx context.Context, externalIds []string) (int, error) {
	var n int
	err := m.locked(func(v *view) (err error) {
		n, err = v.DeleteMany(ctx, externalIds)
		return
	})
	return n, err
}

func (m *Mirror) UpdateWeekWhereNull(ctx context.Context, week domain.Week) (int, error) {
	var n int
	err := m.locked(func(v *view) (err error) {
		n, err = v.UpdateWeekWhereNull(ctx, week)
		return
	})
	return n, err
}

func (m *Mirror) Find(ctx context.Context, week *domain.Week) ([]domain.Asset, error) {
	var ret []domain.Asset
	err := m.locked(func(v *view) (err error) {
		ret, err = v.Find(ctx, week)
		return
	})
	return ret, err
}

func (m *Mirror) Weeks(ctx context.Context) ([]domain.Week, error) {
	var ret []domain.Week
	err := m.locked(func(v *view) (err error) {
		ret, err = v.Weeks(ctx)
		return
	})
	return ret, err
}

func (m *Mirror) Count(ctx context.Context) (int, error) {
	var n int
	err := m.locked(func(v *view) (err error) {
		n, err = v.Count(ctx)
		return
	})
	return n, err
}

func (m *Mirror) Nth(ctx context.Context, n int) (domain.Asset, error) {
	var ret domain.Asset
	err := m.locked(func(v *view) (err error) {
		ret, err = v.Nth(ctx, n)
		return
	})
	return ret, err
}

func (m *Mirror) Transaction(ctx context.Context, f func(context.Context, kdb.Interface) error) error {
	return m.locked(func(v *view) error {
		if err := v.Transaction(ctx, f); err != nil {
			return err
		}
		m.state = v.state
		return nil
	})
}

// view operates on a state without locking. The owner should hold the lock.
type view struct {
	state *state
}

var _ kdb.Interface = &view{}

func (v *view) ExternalIds(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := make([]string, 0, len(v.state.assets))
	for _, a := range v.state.assets {
		ret = append(ret, a.ExternalId)
	}
	return ret, nil
}

func (v *view) InsertMany(ctx context.Context, assets []domain.RemoteAsset) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	known := map[string]struct{}{}
	for _, a := range v.state.assets {
		known[a.ExternalId] = struct{}{}
	}

	inserted := 0
	for _, r := range assets {
		if _, ok := known[r.ExternalId]; ok {
			continue
		}
		known[r.ExternalId] = struct{}{}
		v.state.lastId += 1
		v.state.assets = append(v.state.assets, domain.Asset{
			Id:         v.state.lastId,
			ExternalId: r.ExternalId,
			Name:       r.FileName,
			Url:        r.Url,
			CreatedAt:  r.CreatedAt,
		})
		inserted += 1
	}
	return inserted, nil
}

func (v *view) DeleteMany(ctx context.Context, externalIds []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	doomed := map[string]struct{}{}
	for _, id := range externalIds {
		doomed[id] = struct{}{}
	}

	before := len(v.state.assets)
	v.state.assets = slices.DeleteFunc(v.state.assets, func(a domain.Asset) bool {
		_, ok := doomed[a.ExternalId]
		return ok
	})
	return before - len(v.state.assets), nil
}

func (v *view) UpdateWeekWhereNull(ctx context.Context, week domain.Week) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	updated := 0
	for nth := range v.state.assets {
		if v.state.assets[nth].Week != nil {
			continue
		}
		w := week
		v.state.assets[nth].Week = &w
		updated += 1
	}
	return updated, nil
}

func (v *view) Find(ctx context.Context, week *domain.Week) ([]domain.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := []domain.Asset{}
	for _, a := range v.state.assets {
		if week != nil && (a.Week == nil || *a.Week != *week) {
			continue
		}
		ret = append(ret, a)
	}
	return ret, nil
}

func (v *view) Weeks(ctx context.Context) ([]domain.Week, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := []domain.Week{}
	for _, a := range v.state.assets {
		if a.Week == nil || slices.Contains(ret, *a.Week) {
			continue
		}
		ret = append(ret, *a.Week)
	}
	slices.Sort(ret)
	return ret, nil
}

func (v *view) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(v.state.assets), nil
}

func (v *view) Nth(ctx context.Context, n int) (domain.Asset, error) {
	if err := ctx.Err(); err != nil {
		return domain.Asset{}, err
	}
	if n < 0 || len(v.state.assets) <= n {
		return domain.Asset{}, domain.Missing{Table: "asset", Identity: fmt.Sprintf("#%d (of %d)", n, len(v.state.assets))}
	}
	return v.state.assets[n], nil
}

func (v *view) Transaction(ctx context.Context, f func(context.Context, kdb.Interface) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &view{state: v.state.clone()}
	if err := f(ctx, tx); err != nil {
		return err
	}
	v.state = tx.state
	return nil
}

// Schema returns a schema which is always up to date.
func (m *Mirror) Schema() kdb.SchemaInterface {
	return nullSchema{}
}

func (m *Mirror) Close() error {
	return nil
}

type nullSchema struct{}

func (nullSchema) Version(context.Context) (int, error) { return 0, nil }

func (nullSchema) Latest() int { return 0 }

func (nullSchema) Upgrade(context.Context) error { return nil }
