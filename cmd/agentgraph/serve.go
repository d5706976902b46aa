package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentgraph-go/agentgraph/agents"
	"github.com/agentgraph-go/agentgraph/graph"
	"github.com/agentgraph-go/agentgraph/graph/emit"
	"github.com/agentgraph-go/agentgraph/graph/model"
	modelanthropic "github.com/agentgraph-go/agentgraph/graph/model/anthropic"
	modelgoogle "github.com/agentgraph-go/agentgraph/graph/model/google"
	modelopenai "github.com/agentgraph-go/agentgraph/graph/model/openai"
	"github.com/agentgraph-go/agentgraph/graph/store"
	"github.com/agentgraph-go/agentgraph/server"
	"github.com/agentgraph-go/agentgraph/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	Long: `Starts the multi-agent HTTP service: manual and supervisor-routed
queries, SSE streaming, conversation history, health and metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("allow-volatile", false,
		"Allow the in-memory checkpoint store (conversations are lost on restart)")
	serveCmd.Flags().Bool("trace", false, "Enable OpenTelemetry tracing")
	serveCmd.Flags().Bool("log-events", false, "Log graph execution events to stderr")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowVolatile, _ := cmd.Flags().GetBool("allow-volatile")
	enableTrace, _ := cmd.Flags().GetBool("trace")
	logEvents, _ := cmd.Flags().GetBool("log-events")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	// The default store is an explicit configuration choice, not hidden
	// magic: running a network service on a volatile store is almost
	// always a mistake, so it needs an explicit opt-in.
	if cfg.Store.Backend == "memory" && !allowVolatile {
		return fmt.Errorf("store backend is %q: conversations will be lost on restart; pass --allow-volatile to accept this, or configure sqlite/mysql/postgres/redis", cfg.Store.Backend)
	}

	st, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	chatModel, modelCleanup, err := buildModel(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer modelCleanup()

	registry := prometheus.NewRegistry()
	metrics := graph.NewMetrics(registry)

	var emitter emit.Emitter = emit.NewNullEmitter()
	if enableTrace {
		shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
			ServiceName:    "agentgraph",
			ServiceVersion: version,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			SampleRate:     cfg.Telemetry.SampleRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
		emitter = emit.NewOTelEmitter(telemetry.Tracer())
	} else if logEvents {
		emitter = emit.NewLogEmitter(os.Stderr, true)
	}

	shared := []graph.CompileOption[agents.State]{
		graph.WithStore(st),
		graph.WithMetrics[agents.State](metrics),
		graph.WithEmitter[agents.State](emitter),
	}

	business, err := agents.NewBusinessGraph(chatModel, shared...)
	if err != nil {
		return fmt.Errorf("compiling business graph: %w", err)
	}
	database, err := agents.NewDatabaseGraph(chatModel, shared...)
	if err != nil {
		return fmt.Errorf("compiling database graph: %w", err)
	}
	supervisor, err := agents.NewSupervisorGraph(chatModel, shared...)
	if err != nil {
		return fmt.Errorf("compiling supervisor graph: %w", err)
	}

	srv := server.New(business, database, supervisor,
		server.WithLogger(logger),
		server.WithRequestTimeout(time.Duration(cfg.Server.RequestTimeout)),
		server.WithMetricsRegistry(registry),
	)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.Server.Addr,
			"store", cfg.Store.Backend,
			"provider", cfg.Model.Provider,
		)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutdown started", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown incomplete", "error", err)
			_ = httpServer.Close()
		}
		logger.Info("server stopped")
	}

	return nil
}

// buildStore constructs the configured checkpoint store and returns a
// cleanup func for backends that hold connections.
func buildStore(cfg *Config) (store.Store[agents.State], func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemStore[agents.State](), noop, nil

	case "sqlite":
		st, err := store.NewSQLiteStore[agents.State](cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil

	case "mysql":
		if cfg.Store.DSN == "" {
			return nil, nil, fmt.Errorf("mysql backend needs store.dsn or MYSQL_DSN")
		}
		st, err := store.NewMySQLStore[agents.State](cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening mysql store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil

	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, nil, fmt.Errorf("postgres backend needs store.dsn or POSTGRES_DSN")
		}
		st, err := store.NewPostgresStore[agents.State](cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil

	case "redis":
		st := store.NewRedisStore[agents.State](cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		return st, func() { _ = st.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q (memory|sqlite|mysql|postgres|redis)", cfg.Store.Backend)
	}
}

// buildModel constructs the configured chat provider.
func buildModel(ctx context.Context, cfg *Config) (model.ChatModel, func(), error) {
	noop := func() {}

	apiKey := func(env string) string {
		if cfg.Model.APIKey != "" {
			return cfg.Model.APIKey
		}
		return os.Getenv(env)
	}

	switch cfg.Model.Provider {
	case "openai":
		key := apiKey("OPENAI_API_KEY")
		if key == "" {
			return nil, nil, fmt.Errorf("openai provider needs model.api_key or OPENAI_API_KEY")
		}
		return modelopenai.New(key, cfg.Model.Name), noop, nil

	case "anthropic":
		key := apiKey("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, nil, fmt.Errorf("anthropic provider needs model.api_key or ANTHROPIC_API_KEY")
		}
		return modelanthropic.New(key, cfg.Model.Name), noop, nil

	case "google":
		key := apiKey("GOOGLE_API_KEY")
		if key == "" {
			return nil, nil, fmt.Errorf("google provider needs model.api_key or GOOGLE_API_KEY")
		}
		m, err := modelgoogle.New(ctx, key, cfg.Model.Name)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = m.Close() }, nil

	case "mock":
		return &model.MockChatModel{
			Responses: []model.ChatOut{{Text: "This is a canned response from the mock model."}},
		}, noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown model provider: %q (openai|anthropic|google|mock)", cfg.Model.Provider)
	}
}
