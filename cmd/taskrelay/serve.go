package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/taskrelay/internal/adapter/heuristic"
	cfhttp "github.com/Strob0t/taskrelay/internal/adapter/http"
	"github.com/Strob0t/taskrelay/internal/adapter/mcp"
	cfnats "github.com/Strob0t/taskrelay/internal/adapter/nats"
	cfotel "github.com/Strob0t/taskrelay/internal/adapter/otel"
	"github.com/Strob0t/taskrelay/internal/adapter/ws"
	"github.com/Strob0t/taskrelay/internal/config"
	"github.com/Strob0t/taskrelay/internal/logger"
	"github.com/Strob0t/taskrelay/internal/middleware"
	"github.com/Strob0t/taskrelay/internal/port/a2a"
	"github.com/Strob0t/taskrelay/internal/port/messagequeue"
	"github.com/Strob0t/taskrelay/internal/protocol"
	"github.com/Strob0t/taskrelay/internal/resilience"
	"github.com/Strob0t/taskrelay/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var (
		port, logLevel, backend, natsURL, dsn, mcpAddr string
		maxSize                                        int
		debounce                                       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (HTTP, WebSocket, MCP and NATS intake)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var o config.Overrides
			flags := cmd.Flags()
			if flags.Changed("port") {
				o.Port = &port
			}
			if flags.Changed("log-level") {
				o.LogLevel = &logLevel
			}
			if flags.Changed("backend") {
				o.Backend = &backend
			}
			if flags.Changed("nats-url") {
				o.NatsURL = &natsURL
			}
			if flags.Changed("dsn") {
				o.DSN = &dsn
			}
			if flags.Changed("mcp-addr") {
				o.MCPAddr = &mcpAddr
			}
			if flags.Changed("max-size") {
				o.MaxSize = &maxSize
			}
			if flags.Changed("debounce") {
				o.Debounce = &debounce
			}

			cfg, err := config.LoadWithOverrides(*configPath, o)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&port, "port", "", "HTTP listen port")
	f.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&backend, "backend", "", "persistence backend (memory, nats, postgres, sqlite, tiered)")
	f.StringVar(&natsURL, "nats-url", "", "NATS server URL; empty disables messaging")
	f.StringVar(&dsn, "dsn", "", "PostgreSQL DSN for the postgres backend")
	f.StringVar(&mcpAddr, "mcp-addr", "", "MCP listen address")
	f.IntVar(&maxSize, "max-size", 0, "maximum number of tasks held")
	f.DurationVar(&debounce, "debounce", 0, "quiet period before the queue is persisted")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"backend", cfg.Persistence.Backend,
		"max_size", cfg.Queue.MaxSize,
	)

	// --- Observability ---

	shutdownOTEL, err := cfotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	var (
		natsQueue *cfnats.Queue
		mq        messagequeue.Queue
	)
	if cfg.NATS.URL != "" {
		natsQueue, err = cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := natsQueue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
		mq = natsQueue
		slog.Info("nats connected", "url", cfg.NATS.URL, "stream", cfg.NATS.Stream)
	}

	store, closeStore, err := openStore(ctx, cfg, natsQueue)
	if err != nil {
		return fmt.Errorf("persistence: %w", err)
	}
	defer closeStore()

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithStateChange(func(from, to resilience.State) {
			slog.Warn("persistence breaker state change", "from", from.String(), "to", to.String())
		}),
	)

	// --- Services ---

	hub := ws.NewHub(cfg.Server.CORSOrigin)
	defer hub.Close()

	queue := service.NewTaskQueue(service.QueueLimits{
		MaxSize:           cfg.Queue.MaxSize,
		DescriptionMinLen: cfg.Queue.DescriptionMinLen,
		MaxSessions:       cfg.Queue.MaxSessions,
	})

	persister := service.NewPersister(queue, store, breaker, service.PersistConfig{
		Key:      cfg.Persistence.Key,
		Debounce: cfg.Persistence.Debounce,
	})
	persister.SetMetrics(metrics)
	restored, err := persister.Load(ctx)
	if err != nil {
		// The queue starts empty rather than refusing to serve.
		slog.Error("restore queue", "error", err)
	} else {
		slog.Info("queue restored", "tasks", restored, "backend", cfg.Persistence.Backend)
	}
	queue.Subscribe(persister)

	events := service.NewQueueEvents(queue, hub, mq)
	queue.Subscribe(events)
	hub.OnConnect(func() (string, any) { return service.EventQueueStatus, queue.Status() })

	alerts := service.NewAlertLog(cfg.Dispatch.AlertLogSize, hub, mq)
	alerts.SetMetrics(metrics)

	kb := heuristic.NewKnowledgeBase()
	routing := service.NewRoutingService(queue, kb, service.RoutingConfig{
		DirectiveBudget: cfg.Dispatch.DirectiveBudget,
		AskTimeout:      cfg.Dispatch.AskTimeout,
	}, hub, mq)
	routing.SetMetrics(metrics)

	dispatcher := protocol.NewDispatcher()
	dispatcher.SetObserver(func(ctx context.Context, method string, elapsed time.Duration, code protocol.Code) {
		metrics.RecordDispatch(ctx, method, code.String(), elapsed)
	})
	service.NewToolService(routing, heuristic.NewAnalyzer(), kb, alerts).Register(dispatcher)
	dispatcher.Start()
	slog.Info("dispatcher started", "methods", dispatcher.Methods())

	// --- HTTP ---

	r := chi.NewRouter()
	r.Use(cfhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(middleware.NewAPIKeyAuth(cfg.Auth.APIKeyHash).Handler)

	cfhttp.MountRoutes(r, &cfhttp.Handlers{
		Queue:      queue,
		Routing:    routing,
		Alerts:     alerts,
		Dispatcher: dispatcher,
		Version:    version,
	})
	r.Get("/ws", hub.HandleWS)
	card := a2a.BuildAgentCard(cfg.Server.BaseURL, version, service.ToolDescriptions)
	a2a.NewHandler(card, dispatcher).MountRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(mcp.ServerConfig{
			Addr:       cfg.MCP.Addr,
			Name:       "taskrelay",
			Version:    version,
			APIKeyHash: cfg.Auth.APIKeyHash,
		}, mcp.ServerDeps{Dispatcher: dispatcher, Queue: queue})
		if err := mcpServer.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		slog.Info("mcp server listening", "addr", cfg.MCP.Addr)
	}

	// --- Run ---

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return persister.Run(gctx) })
	g.Go(func() error { return events.Run(gctx) })
	if mq != nil {
		g.Go(func() error { return service.NewIntake(routing, mq).Run(gctx) })
	}
	g.Go(func() error {
		slog.Info("http server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		dispatcher.Stop()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if mcpServer != nil {
			if err := mcpServer.Stop(sctx); err != nil {
				errs = append(errs, fmt.Errorf("mcp shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	// persister.Run flushes any pending change before it returns.
	err = g.Wait()
	slog.Info("stopped")
	return err
}
