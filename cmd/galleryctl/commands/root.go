package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	bindgallery "github.com/opst/gallerysync/pkg/api-types-binding/gallery"
	apigallery "github.com/opst/gallerysync/pkg/api/types/gallery"
	"github.com/opst/gallerysync/pkg/domain"
	"github.com/opst/gallerysync/pkg/domain/asset"
	kgallery "github.com/opst/gallerysync/pkg/gallery"
	"github.com/spf13/cobra"
)

// NewRootCommand builds galleryctl command tree.
//
// Subcommands open Env by open, with the path given by --config (or env GALLERY_CONFIG).
func NewRootCommand(open Opener) *cobra.Command {
	var configPath string
	var env *Env

	root := &cobra.Command{
		Use:           "galleryctl",
		Short:         "Operate the gallery mirror",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("config file is not specified. use --config or GALLERY_CONFIG")
			}
			e, err := open(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			env = e
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if env == nil {
				return nil
			}
			return env.Close()
		},
	}
	root.PersistentFlags().StringVar(
		&configPath, "config", os.Getenv("GALLERY_CONFIG"), "config file path. (env: GALLERY_CONFIG)",
	)

	getEnv := func() *Env { return env }
	root.AddCommand(
		syncCommand(getEnv),
		tagCommand(getEnv),
		weeksCommand(getEnv),
		listCommand(getEnv),
		pickCommand(getEnv),
		tokenCommand(getEnv),
		schemaCommand(getEnv),
	)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// latestSchema runs run only when the schema of the mirror is the latest.
//
// Commands touching assets go through it. "schema" and "token" do not.
func latestSchema(env func() *Env, run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s := env().Store.Schema()
		current, err := s.Version(cmd.Context())
		if err != nil {
			return err
		}
		switch latest := s.Latest(); {
		case current < latest:
			return fmt.Errorf(
				"database schema version %d is outdated (latest: %d). run `galleryctl schema upgrade`",
				current, latest,
			)
		case latest < current:
			return fmt.Errorf("database schema version %d is newer than supported (%d)", current, latest)
		}
		return run(cmd, args)
	}
}

func syncCommand(env func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the mirror with the catalog",
		Args:  cobra.NoArgs,
		RunE: latestSchema(env, func(cmd *cobra.Command, args []string) error {
			e := env()
			r := kgallery.NewReconciler(asset.New(e.Store, e.Catalog), kgallery.WithLogger(e.Logger))
			report, err := r.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, bindgallery.ComposeReport(report))
		}),
	}
}

func tagCommand(env func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "tag WEEK",
		Short: "Tag all untagged assets with WEEK",
		Args:  cobra.ExactArgs(1),
		RunE: latestSchema(env, func(cmd *cobra.Command, args []string) error {
			week := strings.TrimSpace(args[0])
			if week == "" {
				return errors.New("WEEK should not be empty")
			}
			e := env()
			n, err := kgallery.NewWeekTagger(e.Store, kgallery.WithLogger(e.Logger)).
				TagUntagged(cmd.Context(), domain.Week(week))
			if err != nil {
				return err
			}
			return printJSON(cmd, apigallery.TagResult{Tagged: n})
		}),
	}
}

func weeksCommand(env func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "weeks",
		Short: "List weeks attached to assets",
		Args:  cobra.NoArgs,
		RunE: latestSchema(env, func(cmd *cobra.Command, args []string) error {
			weeks, err := kgallery.NewQuery(env().Store).DistinctWeeks(cmd.Context())
			if err != nil {
				return err
			}
			ret := make([]string, 0, len(weeks))
			for _, w := range weeks {
				ret = append(ret, w.String())
			}
			return printJSON(cmd, ret)
		}),
	}
}

func listCommand(env func() *Env) *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets in the mirror",
		Args:  cobra.NoArgs,
		RunE: latestSchema(env, func(cmd *cobra.Command, args []string) error {
			q := kgallery.NewQuery(env().Store)
			var assets []domain.Asset
			var err error
			if cmd.Flags().Changed("week") {
				assets, err = q.ListByWeek(cmd.Context(), domain.Week(week))
			} else {
				assets, err = q.ListAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			ret := make([]apigallery.Asset, 0, len(assets))
			for _, a := range assets {
				ret = append(ret, bindgallery.ComposeAsset(a))
			}
			return printJSON(cmd, ret)
		}),
	}
	cmd.Flags().StringVar(&week, "week", "", "list assets of the week only")
	return cmd
}

func pickCommand(env func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "Pick an asset at random. It prints null when the mirror is empty",
		Args:  cobra.NoArgs,
		RunE: latestSchema(env, func(cmd *cobra.Command, args []string) error {
			a, ok, err := kgallery.NewQuery(env().Store).PickBackground(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return printJSON(cmd, nil)
			}
			return printJSON(cmd, bindgallery.ComposeAsset(a))
		}),
	}
}

func tokenCommand(env func() *Env) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token SUBJECT",
		Short: "Issue a token for SUBJECT, to call admin APIs of galleryd",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				return fmt.Errorf("--ttl should be positive: %s", ttl)
			}
			token, err := env().Keyring.NewJWS(args[0], ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "lifetime of the token")
	return cmd
}

func schemaCommand(env func() *Env) *cobra.Command {
	type version struct {
		Current int `json:"current"`
		Latest  int `json:"latest"`
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Manage schema of the mirror database",
	}
	schema.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show current and latest schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s := env().Store.Schema()
				current, err := s.Version(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, version{Current: current, Latest: s.Latest()})
			},
		},
		&cobra.Command{
			Use:   "upgrade",
			Short: "Upgrade schema to the latest",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s := env().Store.Schema()
				if err := s.Upgrade(cmd.Context()); err != nil {
					return err
				}
				current, err := s.Version(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, version{Current: current, Latest: s.Latest()})
			},
		},
	)
	return schema
}
