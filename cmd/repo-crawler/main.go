package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/repo-crawler/internal/config"
	"github.com/Sternrassler/repo-crawler/pkg/client"
	"github.com/Sternrassler/repo-crawler/pkg/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("repo-crawler failed")
		os.Exit(1)
	}
}

// app carries the state shared by every sub-command.
type app struct {
	configPath string
	envPath    string
	runID      uuid.UUID
	cfg        *config.Config
}

// newRootCmd builds the command tree. All sub-commands are registered here.
func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "repo-crawler",
		Short: "Crawl public GitHub repository metadata into PostgreSQL.",
		Long: `repo-crawler enumerates public repositories through the GitHub GraphQL search API.

Creation-date ranges are bisected until each query fits the 1000 result search window,
then paginated and committed to PostgreSQL in batches.

Configuration is read from defaults, an optional TOML file (--config), an optional .env
file (--env-file) and the environment, in that order.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a TOML config file")
	cmd.PersistentFlags().StringVar(&a.envPath, "env-file", ".env", "path to a .env file (ignored when missing)")

	cmd.AddCommand(
		crawlCmd(a),
		lookupCmd(a),
		migrateCmd(a),
	)

	return cmd
}

// init loads the configuration and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.envPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.runID = uuid.New()

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
		RunID:  a.runID.String(),
	})
	return nil
}

// newClient builds the GraphQL client from the loaded configuration.
func (a *app) newClient() (*client.Client, error) {
	cc := client.DefaultConfig(a.cfg.GitHub.Token)
	cc.Endpoint = a.cfg.GitHub.Endpoint
	cc.MaxAttempts = a.cfg.GitHub.MaxAttempts
	cc.RequestsPerSecond = a.cfg.GitHub.RequestsPerSecond
	cc.Timeout = a.cfg.GitHub.Timeout
	cc.UserAgent = "repo-crawler/" + version
	return client.New(cc)
}
