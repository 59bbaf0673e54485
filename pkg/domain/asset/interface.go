package asset

import (
	"github.com/opst/gallerysync/pkg/domain/asset/catalog"
	"github.com/opst/gallerysync/pkg/domain/asset/db"
)

type Interface interface {
	Database() db.Interface
	Catalog() catalog.Interface
}

type impl struct {
	database db.Interface
	catalog  catalog.Interface
}

func New(database db.Interface, catalog catalog.Interface) Interface {
	return &impl{
		database: database,
		catalog:  catalog,
	}
}

func (i *impl) Database() db.Interface {
	return i.database
}

func (i *impl) Catalog() catalog.Interface {
	return i.catalog
}
