package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/repo-crawler/internal/config"
	"github.com/Sternrassler/repo-crawler/pkg/cache"
	"github.com/Sternrassler/repo-crawler/pkg/lookup"
	"github.com/Sternrassler/repo-crawler/pkg/repo"
	"github.com/Sternrassler/repo-crawler/pkg/store"
)

// lookupQuery is recorded as the source query of repositories saved by lookup.
const lookupQuery = "lookup"

type lookupOutput struct {
	repo.Record
	Cached bool `json:"cached"`
}

// Resolve a single repository, optionally persisting it.
func lookupCmd(a *app) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "lookup OWNER/NAME",
		Short: "Fetch one repository through the lookup query.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.lookup(cmd.Context(), cmd.OutOrStdout(), args[0], save)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "commit the repository to the database")

	return cmd
}

func (a *app) lookup(ctx context.Context, out io.Writer, fullName string, save bool) error {
	cfg := a.cfg
	if err := cfg.Validate(config.Requirements{Token: true, Database: save}); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	owner, name, err := lookup.ParseFullName(fullName)
	if err != nil {
		return err
	}

	gql, err := a.newClient()
	if err != nil {
		return err
	}

	var c lookup.Cache
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		manager := cache.NewManager(rdb, cfg.Redis.CacheTTL)
		if err := manager.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, looking up without cache")
		} else {
			c = manager
		}
	}

	res, err := lookup.New(gql, c).Get(ctx, owner, name)
	if err != nil {
		return err
	}

	record := repo.FromNode(res.Repository, lookupQuery)

	if save {
		st, err := store.Open(ctx, cfg.Database.URL, store.Options{RunID: a.runID, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		if _, err := st.Save(ctx, record); err != nil {
			return fmt.Errorf("save %s: %w", fullName, err)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(lookupOutput{Record: record, Cached: res.Cached})
}
