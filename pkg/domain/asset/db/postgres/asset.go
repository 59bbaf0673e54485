package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/gallerysync/pkg/conn/db/postgres/pool"
	"github.com/opst/gallerysync/pkg/conn/db/postgres/scanner"
	"github.com/opst/gallerysync/pkg/domain"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
	"github.com/opst/gallerysync/pkg/domain/asset/db/postgres/schema"
	xe "github.com/opst/gallerysync/pkg/errors"
)

// transactions of the mirror are serialized with this key of pg_advisory_xact_lock,
// also across processes sharing the database.
const mirrorLockKey = 0x5c4e3a02

type pgAsset struct {
	pool kpool.Pool
}

var _ kdb.Store = &pgAsset{}

// New returns the asset mirror stored in postgres.
func New(pool kpool.Pool) *pgAsset {
	return &pgAsset{pool: pool}
}

// Schema returns the schema manager of the database behind the mirror.
func (m *pgAsset) Schema() kdb.SchemaInterface {
	return schema.New(m.pool)
}

func (m *pgAsset) Close() error {
	m.pool.Close()
	return nil
}

// read runs f on a connection without transaction.
func read[T any](ctx context.Context, pool kpool.Pool, f func(*tables) (T, error)) (T, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return *new(T), xe.Wrap(err)
	}
	defer conn.Release()
	return f(&tables{q: conn})
}

// write runs f in a transaction of the mirror.
func write[T any](ctx context.Context, m kdb.Interface, f func(kdb.Interface) (T, error)) (T, error) {
	var ret T
	err := m.Transaction(ctx, func(ctx context.Context, tx kdb.Interface) error {
		r, err := f(tx)
		ret = r
		return err
	})
	return ret, err
}

func (m *pgAsset) ExternalIds(ctx context.Context) ([]string, error) {
	return read(ctx, m.pool, func(t *tables) ([]string, error) { return t.ExternalIds(ctx) })
}

func (m *pgAsset) InsertMany(ctx context.Context, assets []domain.RemoteAsset) (int, error) {
	return write(ctx, m, func(tx kdb.Interface) (int, error) { return tx.InsertMany(ctx, assets) })
}

func (m *pgAsset) DeleteMany(ctx context.Context, externalIds []string) (int, error) {
	return write(ctx, m, func(tx kdb.Interface) (int, error) { return tx.DeleteMany(ctx, externalIds) })
}

func (m *pgAsset) UpdateWeekWhereNull(ctx context.Context, week domain.Week) (int, error) {
	return write(ctx, m, func(tx kdb.Interface) (int, error) { return tx.UpdateWeekWhereNull(ctx, week) })
}

func (m *pgAsset) Find(ctx context.Context, week *domain.Week) ([]domain.Asset, error) {
	return read(ctx, m.pool, func(t *tables) ([]domain.Asset, error) { return t.Find(ctx, week) })
}

func (m *pgAsset) Weeks(ctx context.Context) ([]domain.Week, error) {
	return read(ctx, m.pool, func(t *tables) ([]domain.Week, error) { return t.Weeks(ctx) })
}

func (m *pgAsset) Count(ctx context.Context) (int, error) {
	return read(ctx, m.pool, func(t *tables) (int, error) { return t.Count(ctx) })
}

func (m *pgAsset) Nth(ctx context.Context, n int) (domain.Asset, error) {
	return read(ctx, m.pool, func(t *tables) (domain.Asset, error) { return t.Nth(ctx, n) })
}

func (m *pgAsset) Transaction(ctx context.Context, f func(context.Context, kdb.Interface) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock($1)`, mirrorLockKey); err != nil {
		return xe.Wrap(err)
	}

	if err := f(ctx, &txAsset{tables: tables{q: tx}, tx: tx}); err != nil {
		return err
	}
	return xe.Wrap(tx.Commit(ctx))
}

// txAsset is the mirror seen in a transaction.
type txAsset struct {
	tables
	tx kpool.Tx
}

var _ kdb.Interface = &txAsset{}

// Transaction runs f in a savepoint of the transaction.
func (t *txAsset) Transaction(ctx context.Context, f func(context.Context, kdb.Interface) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer sp.Rollback(ctx)

	if err := f(ctx, &txAsset{tables: tables{q: sp}, tx: sp}); err != nil {
		return err
	}
	return xe.Wrap(sp.Commit(ctx))
}

// tables implements queries to the mirror.
type tables struct {
	q kpool.Queryer
}

const insertAsset = `
insert into "asset" ("external_id", "name", "url", "created_at")
values ($1, $2, $3, $4)
on conflict ("external_id") do nothing
`

func (t *tables) ExternalIds(ctx context.Context) ([]string, error) {
	rows, err := t.q.Query(ctx, `select "external_id" from "asset" order by "id"`)
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
	if len(assets) == 0 {
		return 0, nil
	}

	batch := new(pgx.Batch)
	for _, a := range assets {
		batch.Queue(insertAsset, a.ExternalId, a.FileName, a.Url, a.CreatedAt)
	}

	results := t.q.SendBatch(ctx, batch)
	inserted := 0
	for range assets {
		ct, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, xe.Wrap(err)
		}
		inserted += int(ct.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, xe.Wrap(err)
	}
	return inserted, nil
}

func (t *tables) DeleteMany(ctx context.Context, externalIds []string) (int, error) {
	if len(externalIds) == 0 {
		return 0, nil
	}
	ct, err := t.q.Exec(
		ctx,
		`delete from "asset" where "external_id" = any($1::varchar[])`,
		externalIds,
	)
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return int(ct.RowsAffected()), nil
}

func (t *tables) UpdateWeekWhereNull(ctx context.Context, week domain.Week) (int, error) {
	ct, err := t.q.Exec(
		ctx,
		`update "asset" set "week" = $1 where "week" is null`,
		string(week),
	)
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return int(ct.RowsAffected()), nil
}

const selectAsset = `select "id", "external_id", "name", "url", "created_at", "week" from "asset"`

func (t *tables) Find(ctx context.Context, week *domain.Week) ([]domain.Asset, error) {
	var rows []assetRow
	var err error
	if week == nil {
		rows, err = scanner.New[assetRow]().QueryAll(ctx, t.q, selectAsset+` order by "id"`)
	} else {
		rows, err = scanner.New[assetRow]().QueryAll(
			ctx, t.q, selectAsset+` where "week" = $1 order by "id"`, string(*week),
		)
	}
	if err != nil {
		return nil, xe.Wrap(err)
	}

	assets := make([]domain.Asset, 0, len(rows))
	for _, r := range rows {
		assets = append(assets, r.asset())
	}
	return assets, nil
}

func (t *tables) Weeks(ctx context.Context) ([]domain.Week, error) {
	// collate "C" sorts weeks by bytes, independent of database locale.
	rows, err := t.q.Query(
		ctx,
		`select distinct "week" collate "C" as "w" from "asset" where "week" is not null order by "w"`,
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
	if err := t.q.QueryRow(ctx, `select count(*) from "asset"`).Scan(&n); err != nil {
		return 0, xe.Wrap(err)
	}
	return n, nil
}

func (t *tables) Nth(ctx context.Context, n int) (domain.Asset, error) {
	missing := domain.Missing{Table: "asset", Identity: fmt.Sprintf("#%d", n)}
	if n < 0 {
		return domain.Asset{}, missing
	}

	rows, err := scanner.New[assetRow]().QueryAll(
		ctx, t.q, selectAsset+` order by "id" limit 1 offset $1`, n,
	)
	if err != nil {
		return domain.Asset{}, xe.Wrap(err)
	}
	if len(rows) == 0 {
		return domain.Asset{}, missing
	}
	return rows[0].asset(), nil
}

// assetRow is a row of "asset" table.
type assetRow struct {
	Id         int64
	ExternalId string
	Name       string
	Url        string
	CreatedAt  time.Time
	Week       pgtype.Text
}

func (r assetRow) asset() domain.Asset {
	a := domain.Asset{
		Id:         r.Id,
		ExternalId: r.ExternalId,
		Name:       r.Name,
		Url:        r.Url,
		CreatedAt:  r.CreatedAt,
	}
	if r.Week.Status == pgtype.Present {
		w := domain.Week(r.Week.String)
		a.Week = &w
	}
	return a
}
