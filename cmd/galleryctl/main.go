package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/opst/gallerysync/cmd/galleryctl/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	root := commands.NewRootCommand(commands.OpenFromConfig)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
