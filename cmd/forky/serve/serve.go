// Package servecmder provides the serve command that runs the forky API
// server over the configured storage, model, and event stream backends.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/api"
	"github.com/forkyhq/forky/pkg/config"
	"github.com/forkyhq/forky/pkg/dotdir"
	"github.com/forkyhq/forky/pkg/eventstream"
	"github.com/forkyhq/forky/pkg/eventstream/kafka"
	"github.com/forkyhq/forky/pkg/eventstream/nop"
	"github.com/forkyhq/forky/pkg/llm/provider"
	"github.com/forkyhq/forky/pkg/logger"
	"github.com/forkyhq/forky/pkg/service"
	"github.com/forkyhq/forky/pkg/storage"
	"github.com/forkyhq/forky/pkg/storage/inmemory"
	"github.com/forkyhq/forky/pkg/storage/postgres"
	"github.com/forkyhq/forky/pkg/storage/sqlite"
)

type serveCommander struct {
	listen        string
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	modelProvider string
	model         string
	modelBaseURL  string
	eventsProv    string
	eventsTopic   string
	debug         bool

	viper  *viper.Viper
	logger *zap.Logger
}

const serveLongDesc string = `Run the forky API server.

The server owns the conversation store, the model client, and the event
stream. CLI commands talk to it over HTTP.

Configuration precedence: flags, then FORKY_* environment variables, then
config.toml in the .forky/ directory, then built-in defaults.

Examples:
  forky serve
  forky serve --listen :9090 --storage sqlite --sqlite ./forky.db
  forky serve --provider anthropic --model claude-haiku-4-5
  forky serve --events-provider kafka --events-topic forky.graph.events`

const serveShortDesc string = "Run the forky API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	boundFlags := []string{
		config.FlagAPIListen,
		config.FlagStorageDriver,
		config.FlagSQLite,
		config.FlagPostgresDSN,
		config.FlagModelProvider,
		config.FlagModel,
		config.FlagModelBaseURL,
		config.FlagEventsProv,
		config.FlagEventsTopic,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, boundFlags)
			cmder.viper = v

			cmder.listen = v.GetString("api.listen")
			cmder.storageDriver = v.GetString("storage.driver")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			cmder.modelProvider = v.GetString("model.provider")
			cmder.model = v.GetString("model.model")
			cmder.modelBaseURL = v.GetString("model.base_url")
			cmder.eventsProv = v.GetString("events.provider")
			cmder.eventsTopic = v.GetString("events.topic")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagModelProvider, &cmder.modelProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagModelBaseURL, &cmder.modelBaseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProv, &cmder.eventsProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsTopic, &cmder.eventsTopic)

	return cmd
}

func (c *serveCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	driver, err := c.createDriver()
	if err != nil {
		return err
	}
	defer driver.Close()

	model, err := provider.New(provider.Config{
		Provider: c.modelProvider,
		Model:    c.model,
		APIKey:   c.viper.GetString("model.api_key"),
		BaseURL:  c.modelBaseURL,
	})
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}

	events, err := c.createPublisher()
	if err != nil {
		return err
	}
	defer events.Close()

	svc := service.New(driver, model, events, c.logger)

	apiServer := api.NewServer(api.Config{ListenAddr: c.listen}, svc, c.logger)

	c.logger.Info("starting forky server",
		zap.String("listen", c.listen),
		zap.String("storage", c.storageDriver),
		zap.String("provider", c.modelProvider),
		zap.String("model", c.model),
		zap.String("events", c.eventsProv),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}

func (c *serveCommander) createDriver() (storage.Driver, error) {
	switch c.storageDriver {
	case "sqlite", "":
		path := c.sqlitePath
		if path == "" {
			ddm := dotdir.NewManager()
			target, err := ddm.Target("")
			if err != nil {
				return nil, fmt.Errorf("resolving data dir: %w", err)
			}
			path = filepath.Join(target, "forky.db")
		}
		driver, err := sqlite.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("creating SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", zap.String("path", path))
		return driver, nil

	case "postgres":
		if c.postgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires --postgres-dsn or storage.postgres_dsn")
		}
		driver, err := postgres.NewDriver(context.Background(), c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("creating Postgres driver: %w", err)
		}
		c.logger.Info("using Postgres storage")
		return driver, nil

	case "inmemory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q (available: sqlite, postgres, inmemory)", c.storageDriver)
	}
}

func (c *serveCommander) createPublisher() (eventstream.Publisher, error) {
	switch c.eventsProv {
	case "nop", "":
		return nop.NewPublisher(), nil
	case "kafka":
		brokers := c.viper.GetStringSlice("events.brokers")
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka events require events.brokers")
		}
		c.logger.Info("publishing graph events to Kafka",
			zap.Strings("brokers", brokers),
			zap.String("topic", c.eventsTopic),
		)
		return kafka.NewPublisher(brokers, c.eventsTopic), nil
	default:
		return nil, fmt.Errorf("unknown events provider: %q (available: nop, kafka)", c.eventsProv)
	}
}
