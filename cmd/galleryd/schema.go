package main

import (
	"context"
	"fmt"

	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
)

// checkSchema confirms the schema is the latest.
//
// When upgrade is true, an outdated schema is upgraded instead.
func checkSchema(ctx context.Context, schema kdb.SchemaInterface, upgrade bool) error {
	current, err := schema.Version(ctx)
	if err != nil {
		return err
	}
	latest := schema.Latest()
	switch {
	case current == latest:
		return nil
	case latest < current:
		return fmt.Errorf("database schema version %d is newer than supported (%d)", current, latest)
	case !upgrade:
		return fmt.Errorf(
			"database schema version %d is outdated (latest: %d). run schema_upgrader or start with --upgrade-schema",
			current, latest,
		)
	}
	return schema.Upgrade(ctx)
}
