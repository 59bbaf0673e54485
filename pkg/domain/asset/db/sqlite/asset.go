// Package sqlite implements the asset mirror on a SQLite database file.
//
// The database is used through a single connection,
// so transactions of the mirror are serialized in the process.
// Transactions begin with "BEGIN IMMEDIATE" to serialize writers across processes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opst/gallerysync/pkg/domain"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
	xe "github.com/opst/gallerysync/pkg/errors"

	_ "modernc.org/sqlite"
)

// max number of placeholders in a statement.
const chunkSize = 500

type Mirror struct {
	db *sql.DB
}

var _ kdb.Store = &Mirror{}

// Open opens the mirror stored in the SQLite database file at path.
//
// The schema is not upgraded. Use Schema().Upgrade for that.
func Open(ctx context.Context, path string) (*Mirror, error) {
	dsn := path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xe.Wrap(err)
	}
	return &Mirror{db: db}, nil
}

func (m *Mirror) Schema() kdb.SchemaInterface {
	return &schema{db: m.db}
}

func (m *Mirror) Close() error {
	return m.db.Close()
}

func (m *Mirror) t() *tables {
	return &tables{q: m.db}
}

func (m *Mirror) ExternalIds(ctx context.Context) ([]string, error) {
	return m.t().ExternalIds(ctx)
}

func (m *Mirror) InsertMany(ctx context.Context, assets []domain.RemoteAsset) (int, error) {
	var n int
	err := m.Transaction(ctx, func(ctx context.Context, tx kdb.Interface) error {
		var err error
		n, err = tx.InsertMany(ctx, assets)
		return err
	})
	return n, err
}

func (m *Mirror) DeleteMany(ctx context.Context, externalIds []string) (int, error) {
	var n int
	err := m.Transaction(ctx, func(ctx context.Context, tx kdb.Interface) error {
		var err error
		n, err = tx.DeleteMany(ctx, externalIds)
		return err
	})
	return n, err
}

func (m *Mirror) UpdateWeekWhereNull(ctx context.Context, week domain.Week) (int, error) {
	return m.t().UpdateWeekWhereNull(ctx, week)
}

func (m *Mirror) Find(ctx context.Context, week *domain.Week) ([]domain.Asset, error) {
	return m.t().Find(ctx, week)
}

func (m *Mirror) Weeks(ctx context.Context) ([]domain.Week, error) {
	return m.t().Weeks(ctx)
}

func (m *Mirror) Count(ctx context.Context) (int, error) {
	return m.t().Count(ctx)
}

func (m *Mirror) Nth(ctx context.Context, n int) (domain.Asset, error) {
	return m.t().Nth(ctx, n)
}

// Transaction runs f in a transaction.
//
// f should use only the mirror passed to it.
// Using the outer mirror in f blocks forever, since the connection is held by the transaction.
func (m *Mirror) Transaction(ctx context.Context, f func(context.Context, kdb.Interface) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback()

	if err := f(ctx, &txAsset{tables: tables{q: tx}, tx: tx}); err != nil {
		return err
	}
	return xe.Wrap(tx.Commit())
}

type txAsset struct {
	tables
	tx    *sql.Tx
	depth int
}

var _ kdb.Interface = &txAsset{}

// Transaction runs f in a savepoint.
func (t *txAsset) Transaction(ctx context.Context, f func(context.Context, kdb.Interface) error) error {
	depth := t.depth + 1
	name := fmt.Sprintf(`"sp_%d"`, depth)
	if _, err := t.tx.ExecContext(ctx, `savepoint `+name); err != nil {
		return xe.Wrap(err)
	}

	if err := f(ctx, &txAsset{tables: t.tables, tx: t.tx, depth: depth}); err != nil {
		if _, rerr := t.tx.ExecContext(ctx, `rollback to `+name); rerr != nil {
			return errors.Join(err, xe.Wrap(rerr))
		}
		if _, rerr := t.tx.ExecContext(ctx, `release `+name); rerr != nil {
			return errors.Join(err, xe.Wrap(rerr))
		}
		return err
	}
	_, err := t.tx.ExecContext(ctx, `release `+name)
	return xe.Wrap(err)
}

// queryer is what *sql.DB and *sql.Tx have in common.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tables struct {
	q queryer
}

func affected(r sql.Result, err error) (int, error) {
	if err != nil {
		return 0, xe.Wrap(err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return int(n), nil
}

func (t *tables) ExternalIds(ctx context.Context) ([]string, error) {
	rows, err := t.q.QueryContext(ctx, `select "external_id" from "asset" order by "id"`)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, xe.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, xe.Wrap(rows.Err())
}

func (t *tables) InsertMany(ctx context.Context, assets []domain.RemoteAsset) (int, error) {
	inserted := 0
	for _, a := range assets {
		n, err := affected(t.q.ExecContext(
			ctx,
			`insert into "asset" ("external_id", "name", "url", "created_at") values (?, ?, ?, ?)
			on conflict ("external_id") do nothing`,
			a.ExternalId, a.FileName, a.Url, a.CreatedAt.Format(time.RFC3339Nano),
		))
		if err != nil {
			return 0, err
		}
		inserted += n
	}
	return inserted, nil
}

func (t *tables) DeleteMany(ctx context.Context, externalIds []string) (int, error) {
	deleted := 0
	for len(externalIds) > 0 {
		chunk := externalIds[:min(chunkSize, len(externalIds))]
		externalIds = externalIds[len(chunk):]

		args := make([]any, len(chunk))
		for i := range chunk {
			args[i] = chunk[i]
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")

		n, err := affected(t.q.ExecContext(
			ctx, `delete from "asset" where "external_id" in (`+placeholders+`)`, args...,
		))
		if err != nil {
			return 0, err
		}
		deleted += n
	}
	return deleted, nil
}

func (t *tables) UpdateWeekWhereNull(ctx context.Context, week domain.Week) (int, error) {
	return affected(t.q.ExecContext(
		ctx, `update "asset" set "week" = ? where "week" is null`, string(week),
	))
}

const selectAsset = `select "id", "external_id", "name", "url", "created_at", "week" from "asset"`

func (t *tables) Find(ctx context.Context, week *domain.Week) ([]domain.Asset, error) {
	var rows *sql.Rows
	var err error
	if week == nil {
		rows, err = t.q.QueryContext(ctx, selectAsset+` order by "id"`)
	} else {
		rows, err = t.q.QueryContext(ctx, selectAsset+` where "week" = ? order by "id"`, string(*week))
	}
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	assets := []domain.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, xe.Wrap(rows.Err())
}

func (t *tables) Weeks(ctx context.Context) ([]domain.Week, error) {
	rows, err := t.q.QueryContext(
		ctx, `select distinct "week" from "asset" where "week" is not null order by "week"`,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	weeks := []domain.Week{}
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, xe.Wrap(err)
		}
		weeks = append(weeks, domain.Week(w))
	}
	return weeks, xe.Wrap(rows.Err())
}

func (t *tables) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx, `select count(*) from "asset"`).Scan(&n); err != nil {
		return 0, xe.Wrap(err)
	}
	return n, nil
}

func (t *tables) Nth(ctx context.Context, n int) (domain.Asset, error) {
	missing := domain.Missing{Table: "asset", Identity: fmt.Sprintf("#%d", n)}
	if n < 0 {
		return domain.Asset{}, missing
	}
	a, err := scanAsset(t.q.QueryRowContext(ctx, selectAsset+` order by "id" limit 1 offset ?`, n))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Asset{}, missing
	}
	return a, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (domain.Asset, error) {
	var a domain.Asset
	var createdAt string
	var week sql.NullString
	if err := row.Scan(&a.Id, &a.ExternalId, &a.Name, &a.Url, &createdAt, &week); err != nil {
		return domain.Asset{}, xe.Wrap(err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return domain.Asset{}, xe.WrapWithNote("created_at of "+a.ExternalId, err)
	}
	a.CreatedAt = t

	if week.Valid {
		w := domain.Week(week.String)
		a.Week = &w
	}
	return a, nil
}
