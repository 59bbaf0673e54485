package asset

import (
	"context"
	"fmt"
	"strings"

	kpool "github.com/opst/gallerysync/pkg/conn/db/postgres/pool"
	"github.com/opst/gallerysync/pkg/domain/asset/db"
	"github.com/opst/gallerysync/pkg/domain/asset/db/inmemory"
	"github.com/opst/gallerysync/pkg/domain/asset/db/postgres"
	"github.com/opst/gallerysync/pkg/domain/asset/db/sqlite"
	xe "github.com/opst/gallerysync/pkg/errors"
)

// OpenStore opens the mirror database at uri.
//
// Supported uri are:
//
// - postgres://... or postgresql://... : postgres database.
//
// - sqlite:PATH : SQLite database file at PATH.
//
// - memory: : volatile mirror in memory. It is lost when the process exits.
func OpenStore(ctx context.Context, uri string) (db.Store, error) {
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok {
		return nil, xe.New("database uri should have scheme: " + redact(uri))
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		pool, err := kpool.Connect(ctx, uri)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		return postgres.New(pool), nil
	case "sqlite":
		path := strings.TrimPrefix(rest, "//")
		if path == "" {
			return nil, xe.New("sqlite database path is empty")
		}
		m, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "memory":
		return inmemory.New(), nil
	default:
		return nil, xe.New(fmt.Sprintf("unsupported database: %s", scheme))
	}
}

// redact hides password in uri, for error messages.
func redact(uri string) string {
	if at := strings.LastIndex(uri, "@"); 0 <= at {
		return "***" + uri[at:]
	}
	return uri
}
