package testenv

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4/pgxpool"
	kpool "github.com/opst/gallerysync/pkg/conn/db/postgres/pool"
)

// EnvDSN is the environment variable which tells the connection string of test database.
//
// Tests using PoolBroaker are skipped when this is empty.
const EnvDSN = "GALLERY_TEST_POSTGRES"

type pg struct {
	pool *pgxpool.Pool
}

func (p *pg) GetPool(ctx context.Context, t *testing.T) kpool.Pool {
	t.Cleanup(func() {
		t.Helper()
		ClearTables(ctx, p.pool, t)
	})

	ClearTables(ctx, p.pool, t)
	return &unclosable{Pool: kpool.Wrap(p.pool)}
}

// unclosable keeps the shared pool open when a testee closes it.
type unclosable struct {
	kpool.Pool
}

func (unclosable) Close() {}

// PoolBroaker is a interface to get a pool.
type PoolBroaker interface {
	// GetPool returns a pool.
	//
	// Tables are cleaned up before returning and after t.
	GetPool(ctx context.Context, t *testing.T) kpool.Pool
}

// NewPoolBroaker returns a PoolBroaker connected to the database at $GALLERY_TEST_POSTGRES.
//
// If the variable is not set, t is skipped.
//
// # Args
//
// - ctx: When this context is canceled, the database connection behind the pool will be lost.
//
// - t: scope of the PoolBroaker.
// When this test is finished, the broaker will be shutdown.
func NewPoolBroaker(ctx context.Context, t *testing.T) PoolBroaker {
	t.Helper()

	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s is not set", EnvDSN)
	}

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	return &pg{pool: pool}
}

// ClearTables empties all tables of the mirror, and restarts id sequences.
//
// Missing tables are ignored, so this can be called before the schema is upgraded.
func ClearTables(ctx context.Context, p *pgxpool.Pool, t *testing.T) {
	t.Helper()

	conn, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("fail to clean-up tables.: %v", err)
	}
	defer conn.Release()

	for _, command := range []string{
		`truncate "asset" RESTART IDENTITY cascade`,
	} {
		if _, err := conn.Exec(ctx, command); err != nil {
			if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UndefinedTable {
				continue
			}
			t.Errorf("fail to clean-up tables.: %v", err)
		}
	}
}
