package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
	xe "github.com/opst/gallerysync/pkg/errors"
)

// each directory under repository is a schema version, named by its number.
//
//go:embed repository
var repository embed.FS

// schema tracks its version in "PRAGMA user_version".
type schema struct {
	db *sql.DB
}

var _ kdb.SchemaInterface = &schema{}

type version struct {
	Version int
	Root    string
}

func versions() ([]version, error) {
	dir, err := fs.ReadDir(repository, "repository")
	if err != nil {
		return nil, xe.Wrap(err)
	}

	vs := make([]version, 0, len(dir))
	for _, entry := range dir {
		if !entry.IsDir() {
			continue
		}
		v, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		vs = append(vs, version{Version: v, Root: path.Join("repository", entry.Name())})
	}
	slices.SortFunc(vs, func(a, b version) int { return cmp.Compare(a.Version, b.Version) })
	return vs, nil
}

func (v version) Apply(ctx context.Context, tx *sql.Tx) error {
	return fs.WalkDir(repository, v.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}
		query, err := fs.ReadFile(repository, p)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(query)); err != nil {
			return xe.WrapWithNote("applying "+p, err)
		}
		return nil
	})
}

func (s *schema) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `pragma user_version`).Scan(&v); err != nil {
		return -1, xe.Wrap(err)
	}
	return v, nil
}

func (s *schema) Latest() int {
	vs, err := versions()
	if err != nil || len(vs) == 0 {
		return 0
	}
	return vs[len(vs)-1].Version
}

func (s *schema) Upgrade(ctx context.Context) error {
	vs, err := versions()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx, `pragma user_version`).Scan(&current); err != nil {
		return xe.Wrap(err)
	}

	for _, v := range vs {
		if v.Version <= current {
			continue
		}
		if err := v.Apply(ctx, tx); err != nil {
			return err
		}
		// pragma does not take placeholders.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`pragma user_version = %d`, v.Version)); err != nil {
			return xe.Wrap(err)
		}
	}

	return xe.Wrap(tx.Commit())
}
