package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/opst/gallerysync/pkg/domain/asset"
	"github.com/opst/gallerysync/pkg/utils/try"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Database string `flag:"database" help:"URI of the mirror database. postgres://..., sqlite:PATH"`
	DryRun   bool   `flag:"dry-run" help:"print current and latest schema version, without upgrading."`
}

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt, os.Kill,
	)
	defer cancel()

	cmd := try.To(flarc.NewCommand(
		"upgrade schema of the gallery mirror database",
		Flag{
			Database: os.Getenv("GALLERY_DATABASE"),
		},
		flarc.Args{},
		func(ctx context.Context, c flarc.Commandline[Flag], _ []any) error {
			flags := c.Flags()
			if flags.Database == "" {
				return fmt.Errorf("%w: --database or GALLERY_DATABASE is required", flarc.ErrUsage)
			}

			store, err := asset.OpenStore(ctx, flags.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			schema := store.Schema()
			current, err := schema.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Stdout(), "schema version: %d (latest: %d)\n", current, schema.Latest())
			if flags.DryRun || schema.Latest() <= current {
				return nil
			}

			logger.Printf("upgrading schema: %d -> %d", current, schema.Latest())
			return schema.Upgrade(ctx)
		},
	)).OrFatal(logger)

	os.Exit(flarc.Run(ctx, cmd))
}
