package mock

import (
	"context"
	"errors"

	"github.com/opst/gallerysync/pkg/domain"
	"github.com/opst/gallerysync/pkg/domain/asset/catalog"
)

type MockCatalog struct {
	Impl struct {
		Fetch func(ctx context.Context) ([]domain.RemoteAsset, error)
	}

	Calls struct {
		Fetch int
	}
}

var _ catalog.Interface = &MockCatalog{}

func NewCatalog() *MockCatalog {
	return &MockCatalog{}
}

// Returning returns a mock whose Fetch always returns a copy of assets.
func Returning(assets ...domain.RemoteAsset) *MockCatalog {
	m := NewCatalog()
	m.Impl.Fetch = func(context.Context) ([]domain.RemoteAsset, error) {
		return append([]domain.RemoteAsset{}, assets...), nil
	}
	return m
}

func (m *MockCatalog) Fetch(ctx context.Context) ([]domain.RemoteAsset, error) {
	m.Calls.Fetch += 1
	if m.Impl.Fetch == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Fetch(ctx)
}
