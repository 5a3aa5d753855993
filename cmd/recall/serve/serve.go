// Package servecmder provides the serve command running the chat gateway,
// the write-back workers, and the consolidation loop as one process.
package servecmder

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/gateway"
	"github.com/ashenvale/recall/pkg/agent"
	"github.com/ashenvale/recall/pkg/bundle"
	"github.com/ashenvale/recall/pkg/config"
	"github.com/ashenvale/recall/pkg/dispatch"
	"github.com/ashenvale/recall/pkg/dotdir"
	"github.com/ashenvale/recall/pkg/embeddings"
	ollamaembed "github.com/ashenvale/recall/pkg/embeddings/ollama"
	openaiembed "github.com/ashenvale/recall/pkg/embeddings/openai"
	"github.com/ashenvale/recall/pkg/eventstream"
	kafkaevents "github.com/ashenvale/recall/pkg/eventstream/kafka"
	nopevents "github.com/ashenvale/recall/pkg/eventstream/nop"
	"github.com/ashenvale/recall/pkg/generation"
	openaigen "github.com/ashenvale/recall/pkg/generation/openai"
	"github.com/ashenvale/recall/pkg/logger"
	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/memstore/inmemory"
	weaviatestore "github.com/ashenvale/recall/pkg/memstore/weaviate"
	"github.com/ashenvale/recall/pkg/promotion"
	"github.com/ashenvale/recall/pkg/vector"
	qdrantvec "github.com/ashenvale/recall/pkg/vector/qdrant"
	sqlitevec "github.com/ashenvale/recall/pkg/vector/sqlitevec"
	weaviatevec "github.com/ashenvale/recall/pkg/vector/weaviate"
)

type ServeCommander struct {
	listen    string
	configDir string
	debug     bool
	logger    *zap.Logger
}

const serveLongDesc string = `Run the Recall service.

Starts the HTTP chat gateway, the detached write-back worker pool, and the
periodic consolidation sweep in a single process. Providers for the memory
store, vector search, embeddings, generation, and event stream are selected
from configuration:
  recall serve                  Run with config.toml / defaults
  recall serve --listen :9000   Override the gateway listen address

Configuration is resolved from the .recall/ directory, RECALL_* environment
variables, and built-in defaults, in ascending precedence below CLI flags.`

const serveShortDesc string = "Run the Recall service"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %v", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for the gateway to listen on (overrides gateway.listen)")

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	cfg := config.FromViper(v)
	if c.listen != "" {
		cfg.Gateway.Listen = c.listen
	}

	// Config edits on disk take effect on the next restart; log so the
	// operator knows the running process is stale.
	v.OnConfigChange(func(e fsnotify.Event) {
		c.logger.Info("config file changed, restart to apply",
			zap.String("file", e.Name),
		)
	})
	v.WatchConfig()

	ctx := context.Background()

	store, err := c.createStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := c.createEmbedder(cfg)
	if err != nil {
		return err
	}

	adapter, err := c.createSearchAdapter(cfg, embedder)
	if err != nil {
		return err
	}
	defer adapter.Close()

	events, err := c.createPublisher(cfg)
	if err != nil {
		return err
	}
	defer events.Close()

	service, err := openaigen.NewService(openaigen.Config{
		BaseURL:   cfg.Generation.Target,
		Model:     cfg.Generation.Model,
		APIKey:    os.Getenv(cfg.Generation.APIKeyEnv),
		AgentName: cfg.Gateway.AgentName,
		MaxTokens: cfg.Generation.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating generation service: %w", err)
	}
	defer service.Close()

	orchestrator := generation.NewOrchestrator(service, generation.Config{
		MaxRetries: cfg.Generation.MaxRetries,
		BaseWait:   time.Duration(cfg.Generation.BaseWaitMS) * time.Millisecond,
	}, c.logger)

	promoter := promotion.NewEngine(store, adapter, events, promotion.Config{
		Window:           time.Duration(cfg.Promotion.WindowDays) * 24 * time.Hour,
		RepeatThreshold:  cfg.Promotion.RepeatThreshold,
		SimilarityCutoff: cfg.Promotion.SimilarityCutoff,
	}, c.logger)

	pool, err := dispatch.NewPool(&dispatch.PoolConfig{
		Store:    store,
		Promoter: promoter,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating write-back pool: %w", err)
	}

	gwCfg := gateway.Config{
		ListenAddr:   cfg.Gateway.Listen,
		HistoryDepth: cfg.Gateway.HistoryDepth,
	}

	log := gateway.NewChannelLog(gwCfg.HistoryDepth)
	assembler := bundle.NewAssembler(store, adapter, log, cfg.Gateway.AgentUserID, bundle.Config{
		FetchTimeout:      time.Duration(cfg.Assembler.FetchTimeoutMS) * time.Millisecond,
		MemoryLimit:       cfg.Assembler.MemoryLimit,
		ConversationLimit: cfg.Assembler.ConversationLimit,
		HistoryLimit:      cfg.Assembler.HistoryLimit,
	}, c.logger)

	outbound := gateway.NewOutbound(log, cfg.Gateway.AgentUserID, cfg.Gateway.AgentName)
	dispatcher := dispatch.NewDispatcher(outbound, pool, events, c.logger)

	var consolidator *agent.Consolidator
	if cfg.Consolidation.Enabled {
		consolidator = agent.NewConsolidator(promoter, cfg.Consolidation.Schedule, c.logger)
		if err := consolidator.Start(); err != nil {
			return fmt.Errorf("starting consolidation loop: %w", err)
		}
	}

	eng := agent.NewAgent(assembler, orchestrator, dispatcher, consolidator, c.logger)

	server := gateway.NewServer(gwCfg, eng, store, log, cfg.Gateway.AgentUserID, c.logger)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		c.shutdown(nil, consolidator, pool)
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		c.shutdown(server, consolidator, pool)
		return nil
	}
}

// shutdown stops accepting requests, then drains the pending write-back work
// so no accepted memory job is lost.
func (c *ServeCommander) shutdown(server *gateway.Server, consolidator *agent.Consolidator, pool *dispatch.Pool) {
	if server != nil {
		if err := server.Shutdown(); err != nil {
			c.logger.Warn("gateway shutdown", zap.Error(err))
		}
	}
	if consolidator != nil {
		consolidator.Stop()
	}
	pool.Close()
}

func (c *ServeCommander) createStore(ctx context.Context, cfg *config.Config) (*memstore.Client, error) {
	switch cfg.Store.Provider {
	case "weaviate":
		driver, err := weaviatestore.NewDriver(weaviatestore.Config{
			URL:      cfg.Store.Target,
			PoolSize: int(cfg.Store.PoolSize),
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating weaviate store: %w", err)
		}
		if err := driver.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensuring store schema: %w", err)
		}
		c.logger.Info("using weaviate memory store", zap.String("target", cfg.Store.Target))
		return memstore.NewClient(driver, c.logger), nil
	case "inmemory":
		c.logger.Info("using in-memory memory store")
		return memstore.NewClient(inmemory.NewDriver(), c.logger), nil
	default:
		return nil, fmt.Errorf("unknown store provider: %q", cfg.Store.Provider)
	}
}

func (c *ServeCommander) createEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return ollamaembed.NewEmbedder(ollamaembed.EmbedderConfig{
			BaseURL: cfg.Embedding.Target,
			Model:   cfg.Embedding.Model,
		})
	case "openai":
		return openaiembed.NewEmbedder(openaiembed.EmbedderConfig{
			BaseURL: cfg.Embedding.Target,
			Model:   cfg.Embedding.Model,
			APIKey:  os.Getenv(cfg.Generation.APIKeyEnv),
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Embedding.Provider)
	}
}

func (c *ServeCommander) createSearchAdapter(cfg *config.Config, embedder embeddings.Embedder) (*vector.Adapter, error) {
	var (
		driver vector.Driver
		err    error
	)

	switch cfg.Vector.Provider {
	case "weaviate":
		driver, err = weaviatevec.NewDriver(weaviatevec.Config{
			URL: cfg.Vector.Target,
		}, c.logger)
	case "sqlite-vec":
		dbPath := cfg.Vector.DBPath
		if dbPath == "" {
			dbPath, err = c.defaultVecPath()
			if err != nil {
				return nil, err
			}
		}
		driver, err = sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     dbPath,
			Dimensions: cfg.Vector.Dimensions,
		}, c.logger)
	case "qdrant":
		host, port := splitHostPort(cfg.Vector.Target)
		driver, err = qdrantvec.NewDriver(qdrantvec.Config{
			Host:       host,
			Port:       port,
			Dimensions: cfg.Vector.Dimensions,
		}, c.logger)
	default:
		return nil, fmt.Errorf("unknown vector provider: %q", cfg.Vector.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s vector driver: %w", cfg.Vector.Provider, err)
	}

	c.logger.Info("using vector search",
		zap.String("provider", cfg.Vector.Provider),
		zap.Float64("alpha", cfg.Vector.Alpha),
	)

	return vector.NewAdapter(driver, embedder, vector.AdapterConfig{
		Alpha: float32(cfg.Vector.Alpha),
		Limit: cfg.Assembler.RelatedLimit,
	}, c.logger), nil
}

func (c *ServeCommander) createPublisher(cfg *config.Config) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "kafka":
		pub, err := kafkaevents.NewPublisher(kafkaevents.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing memory events to kafka",
			zap.String("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic),
		)
		return pub, nil
	case "nop":
		return nopevents.NewPublisher(), nil
	default:
		return nil, fmt.Errorf("unknown events provider: %q", cfg.Events.Provider)
	}
}

// defaultVecPath places the sqlite-vec database alongside config.toml in the
// resolved .recall/ directory, falling back to in-memory when none exists.
func (c *ServeCommander) defaultVecPath() (string, error) {
	target, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return "", fmt.Errorf("resolving vector db path: %w", err)
	}
	if target == "" {
		return ":memory:", nil
	}
	return filepath.Join(target, "vectors.db"), nil
}

// splitHostPort splits "host:port", tolerating a bare host.
func splitHostPort(target string) (string, int) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
