package schema

import (
	"cmp"
	"context"
	"embed"
	"errors"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kpool "github.com/opst/gallerysync/pkg/conn/db/postgres/pool"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
	xe "github.com/opst/gallerysync/pkg/errors"
)

// each directory under repository is a schema version, named by its number.
//
//go:embed repository
var repository embed.FS

// upgrades are serialized with this key of pg_advisory_xact_lock.
const upgradeLockKey = 0x5c4e3a01

type pgSchema struct {
	pool       kpool.Pool
	repository fs.FS
}

var _ kdb.SchemaInterface = &pgSchema{}

// New creates a new Schema with the built-in schema repository.
func New(pool kpool.Pool) *pgSchema {
	sub, err := fs.Sub(repository, "repository")
	if err != nil {
		panic(err) // embedded; never happens.
	}
	return WithRepository(pool, sub)
}

// WithRepository creates a new Schema.
//
// # Args
//
// - pool: connection pool to the database.
//
// - repo: schema repository. Each directory named as an integer is a version,
// and .sql files in it are applied in lexical order.
func WithRepository(pool kpool.Pool, repo fs.FS) *pgSchema {
	return &pgSchema{pool: pool, repository: repo}
}

type version struct {
	Version int
	Root    string
}

func (v version) Apply(ctx context.Context, repo fs.FS, conn kpool.Queryer) error {
	return fs.WalkDir(repo, v.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}

		query, err := fs.ReadFile(repo, p)
		if err != nil {
			return err
		}

		if _, err := conn.Exec(ctx, string(query)); err != nil {
			return xe.WrapWithNote("applying "+p, err)
		}
		return nil
	})
}

func (s *pgSchema) Version(ctx context.Context) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return -1, xe.Wrap(err)
	}
	defer conn.Release()
	return currentVersion(ctx, conn)
}

func currentVersion(ctx context.Context, conn kpool.Queryer) (int, error) {
	var version int
	if err := conn.QueryRow(
		ctx, `select coalesce(max("version"), 0) from "schema_version"`,
	).Scan(&version); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
			if pgerr.Code == pgerrcode.UndefinedTable {
				return 0, nil
			}
		}
		return -1, xe.Wrap(err)
	}

	return version, nil
}

func (s *pgSchema) Latest() int {
	vs, err := s.versions()
	if err != nil || len(vs) == 0 {
		return 0
	}
	return vs[len(vs)-1].Version
}

func (s *pgSchema) Upgrade(ctx context.Context) error {
	schemaVersions, err := s.versions()
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock($1)`, upgradeLockKey); err != nil {
		return xe.Wrap(err)
	}

	// version is read in a savepoint, since a missing table aborts the transaction.
	current, err := func() (int, error) {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return -1, xe.Wrap(err)
		}
		defer sp.Rollback(ctx)
		return currentVersion(ctx, sp)
	}()
	if err != nil {
		return err
	}

	for _, v := range schemaVersions {
		if v.Version <= current {
			continue
		}
		if err := v.Apply(ctx, s.repository, tx); err != nil {
			return err
		}
		if _, err := tx.Exec(
			ctx, `delete from "schema_version"`,
		); err != nil {
			return xe.Wrap(err)
		}
		if _, err := tx.Exec(
			ctx,
			`insert into "schema_version" ("version") values ($1)`,
			v.Version,
		); err != nil {
			return xe.Wrap(err)
		}
	}

	return xe.Wrap(tx.Commit(ctx))
}

// versions lookup the schema from the schema repository.
//
// # Returns
//
// - []version: The list of schema versions, sorted by version number.
//
// - error: The error if any.
func (s *pgSchema) versions() ([]version, error) {
	dir, err := fs.ReadDir(s.repository, ".")
	if err != nil {
		return nil, xe.Wrap(err)
	}

	schemaVersions := make([]version, 0, len(dir))
	for _, entry := range dir {
		if !entry.IsDir() {
			continue
		}

		v, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		schemaVersions = append(schemaVersions, version{
			Version: v,
			Root:    path.Clean(entry.Name()),
		})
	}
	slices.SortFunc(
		schemaVersions,
		func(i, j version) int { return cmp.Compare(i.Version, j.Version) },
	)

	return schemaVersions, nil
}
