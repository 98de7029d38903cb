// Package servecmder provides the serve command that runs the cadence
// session service.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/cadence/api"
	"github.com/papercomputeco/cadence/api/mcp"
	"github.com/papercomputeco/cadence/cmd/cadence/storeopen"
	aiutils "github.com/papercomputeco/cadence/pkg/ai/utils"
	"github.com/papercomputeco/cadence/pkg/bridge"
	"github.com/papercomputeco/cadence/pkg/config"
	"github.com/papercomputeco/cadence/pkg/coordinator"
	"github.com/papercomputeco/cadence/pkg/eventstream"
	"github.com/papercomputeco/cadence/pkg/eventstream/kafka"
	"github.com/papercomputeco/cadence/pkg/eventstream/nop"
	"github.com/papercomputeco/cadence/pkg/lease"
	"github.com/papercomputeco/cadence/pkg/lease/local"
	"github.com/papercomputeco/cadence/pkg/lease/redis"
	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/scheduler"
)

type ServeCommander struct {
	flags struct {
		listen        string
		storageDriver string
		sqlitePath    string
		postgresDSN   string
		leaseProvider string
		redisAddr     string
		aiProvider    string
		aiTarget      string
		aiModel       string
		kafkaBrokers  string
		flushWorkers  uint
	}

	configDir string
	debug     bool
	jsonLogs  bool
	logFile   string

	viper  *viper.Viper
	logger *slog.Logger
}

const serveLongDesc string = `Run the cadence session service.

The service keeps an in-memory session per learner, flushes progress to the
configured store in the background and serves the HTTP API, the tutor bridge
and the MCP tools on a single listener.

Settings come from flags, CADENCE_* environment variables and the
config.toml in the .cadence/ directory, in that order of precedence. Edits to
the [scheduler] section of config.toml apply without a restart.`

const serveShortDesc string = "Run the cadence session service"

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagLeaseProvider,
	config.FlagRedisAddr,
	config.FlagAIProvider,
	config.FlagAITarget,
	config.FlagAIModel,
	config.FlagKafkaBrokers,
	config.FlagFlushWorkers,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)

			cmder.viper = v
			cmder.configDir = configDir
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &cmder.flags.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &cmder.flags.storageDriver)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.flags.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &cmder.flags.postgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLeaseProvider, &cmder.flags.leaseProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagRedisAddr, &cmder.flags.redisAddr)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAIProvider, &cmder.flags.aiProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAITarget, &cmder.flags.aiTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAIModel, &cmder.flags.aiModel)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagKafkaBrokers, &cmder.flags.kafkaBrokers)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagFlushWorkers, &cmder.flags.flushWorkers)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "log-json", false, "Write logs as JSON")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := config.FromViper(c.viper)
	if err != nil {
		return err
	}

	sched, err := scheduler.NewScheduler(cfg.SchedulerParams())
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	store, err := storeopen.Open(ctx, cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	leases, closeLeases, err := c.newLeaseManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLeases()

	publisher, err := c.newPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	coord, err := coordinator.New(coordinator.Config{
		Store:          store,
		Leases:         leases,
		Scheduler:      sched,
		Publisher:      publisher,
		FlushInterval:  cfg.Sync.FlushInterval.Duration,
		FlushThreshold: cfg.Sync.FlushThreshold,
		FlushWorkers:   cfg.Sync.FlushWorkers,
		CloseTimeout:   cfg.Sync.CloseTimeout.Duration,
		HistorySize:    cfg.Sync.HistorySize,
		Logger:         c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	if err := coord.Start(); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}

	capability, err := aiutils.NewCapability(&aiutils.NewCapabilityOpts{
		ProviderType: cfg.AI.Provider,
		TargetURL:    cfg.AI.Target,
		Model:        cfg.AI.Model,
		APIKey:       cfg.AI.APIKey,
		Timeout:      cfg.AI.Timeout.Duration,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating ai capability: %w", err)
	}
	if capability == nil {
		c.logger.Info("no ai provider configured, tutor disabled")
	}

	br, err := bridge.New(bridge.Config{
		Source:          coord,
		Capability:      capability,
		MaxContextItems: cfg.AI.MaxContextItems,
		MaxHistory:      cfg.AI.MaxHistory,
		Model:           cfg.AI.Model,
		Logger:          c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Sessions: coord,
		Bridge:   br,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		MCPHandler: mcpServer.Handler(),
	}, coord, br, store, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	c.watchScheduler(coord)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Sync.CloseTimeout.Duration*2)
		defer cancel()

		return errors.Join(
			server.Shutdown(shutdownCtx),
			coord.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

// setupLogger builds the console logger and, with --log-file, fans it out
// to a JSON log file.
func (c *ServeCommander) setupLogger() (func(), error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(!c.jsonLogs),
		logger.WithSource(c.debug),
	)
	if c.logFile == "" {
		c.logger = console
		return func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
		logger.WithSource(c.debug),
	)
	c.logger = logger.Multi(console, file)
	return func() { _ = f.Close() }, nil
}

func (c *ServeCommander) newLeaseManager(ctx context.Context, cfg *config.Config) (lease.Manager, func(), error) {
	switch cfg.Lease.Provider {
	case "local", "":
		c.logger.Info("using local leases", "ttl", cfg.Lease.TTL.Duration)
		return local.NewManager(cfg.Lease.TTL.Duration), func() {}, nil
	case "redis":
		m, err := redis.NewManager(ctx, redis.Config{
			Addr:     cfg.Lease.RedisAddr,
			Password: cfg.Lease.RedisPassword,
			DB:       cfg.Lease.RedisDB,
			TTL:      cfg.Lease.TTL.Duration,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis lease manager: %w", err)
		}
		c.logger.Info("using redis leases", "addr", cfg.Lease.RedisAddr, "ttl", cfg.Lease.TTL.Duration)
		return m, func() { _ = m.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown lease provider: %q (supported: local, redis)", cfg.Lease.Provider)
	}
}

func (c *ServeCommander) newPublisher(cfg *config.Config) (eventstream.Publisher, error) {
	provider := cfg.EventStream.Provider
	if provider == "" && cfg.EventStream.Brokers != "" {
		provider = "kafka"
	}

	switch provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		var brokers []string
		for _, b := range strings.Split(cfg.EventStream.Brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: brokers,
			Topic:   cfg.EventStream.Topic,
			Logger:  c.logger,
		})
		if err != nil {
			return nil, err
		}
		c.logger.Info("publishing mastery events", "brokers", brokers, "topic", cfg.EventStream.Topic)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event stream provider: %q (supported: kafka)", provider)
	}
}

// watchScheduler swaps in new scheduling constants when config.toml changes.
// Invalid edits are logged and the running scheduler is kept.
func (c *ServeCommander) watchScheduler(coord *coordinator.Coordinator) {
	if c.viper.ConfigFileUsed() == "" {
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := config.FromViper(c.viper)
		if err != nil {
			c.logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		sched, err := scheduler.NewScheduler(cfg.SchedulerParams())
		if err != nil {
			c.logger.Warn("ignoring scheduler change", "file", e.Name, "error", err)
			return
		}
		coord.SetScheduler(sched)
		c.logger.Info("scheduler reloaded", "file", e.Name)
	})
	c.viper.WatchConfig()
}
