// this package provide "mock" implementation of the asset mirror for testing.
package mock

import (
	"context"
	"errors"

	"github.com/opst/gallerysync/pkg/domain"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
)

type MockAssetInterface struct {
	Impl struct {
		ExternalIds         func(ctx context.Context) ([]string, error)
		InsertMany          func(ctx context.Context, assets []domain.RemoteAsset) (int, error)
		DeleteMany          func(ctx context.Context, externalIds []string) (int, error)
		UpdateWeekWhereNull func(ctx context.Context, week domain.Week) (int, error)
		Find                func(ctx context.Context, week *domain.Week) ([]domain.Asset, error)
		Weeks               func(ctx context.Context) ([]domain.Week, error)
		Count               func(ctx context.Context) (int, error)
		Nth                 func(ctx context.Context, n int) (domain.Asset, error)
		Transaction         func(ctx context.Context, f func(context.Context, kdb.Interface) error) error
	}
}

var _ kdb.Interface = &MockAssetInterface{}

func NewAssetInterface() *MockAssetInterface {
	return &MockAssetInterface{}
}

func (m *MockAssetInterface) ExternalIds(ctx context.Context) ([]string, error) {
	if m.Impl.ExternalIds == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.ExternalIds(ctx)
}

func (m *MockAssetInterface) InsertMany(ctx context.Context, assets []domain.RemoteAsset) (int, error) {
	if m.Impl.InsertMany == nil {
		return 0, errors.New("[MOCK] not implemented")
	}
	return m.Impl.InsertMany(ctx, assets)
}

func (m *MockAssetInterface) DeleteMany(ctx context.Context, externalIds []string) (int, error) {
	if m.Impl.DeleteMany == nil {
		return 0, errors.New("[MOCK] not implemented")
	}
	return m.Impl.DeleteMany(ctx, externalIds)
}

func (m *MockAssetInterface) UpdateWeekWhereNull(ctx context.Context, week domain.Week) (int, error) {
	if m.Impl.UpdateWeekWhereNull == nil {
		return 0, errors.New("[MOCK] not implemented")
	}
	return m.Impl.UpdateWeekWhereNull(ctx, week)
}

func (m *MockAssetInterface) Find(ctx context.Context, week *domain.Week) ([]domain.Asset, error) {
	if m.Impl.Find == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Find(ctx, week)
}

func (m *MockAssetInterface) Weeks(ctx context.Context) ([]domain.Week, error) {
	if m.Impl.Weeks == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Weeks(ctx)
}

func (m *MockAssetInterface) Count(ctx context.Context) (int, error) {
	if m.Impl.Count == nil {
		return 0, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Count(ctx)
}

func (m *MockAssetInterface) Nth(ctx context.Context, n int) (domain.Asset, error) {
	if m.Impl.Nth == nil {
		return domain.Asset{}, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Nth(ctx, n)
}

func (m *MockAssetInterface) Transaction(ctx context.Context, f func(context.Context, kdb.Interface) error) error {
	if m.Impl.Transaction == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.Transaction(ctx, f)
}
