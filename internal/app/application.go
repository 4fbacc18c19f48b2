package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"debatehall/internal/api"
	"debatehall/internal/auth"
	"debatehall/internal/config"
	"debatehall/internal/database"
	"debatehall/internal/hub"
	"debatehall/internal/membership"
	"debatehall/internal/memstore"
	"debatehall/internal/messagelog"
	"debatehall/internal/moderation"
	"debatehall/internal/notify"
	"debatehall/internal/presence"
	"debatehall/internal/router"
	"debatehall/internal/session"
	"debatehall/internal/telemetry"
	"debatehall/internal/typing"
	"debatehall/internal/websocket"
	pkgdatabase "debatehall/pkg/database"
	"debatehall/pkg/interfaces"
)

// MemoryDatabasePath selects the in-process store instead of SQLite
const MemoryDatabasePath = ":memory:"

// Application coordinates all system components.
// Initialization order: Store → Auth → Session/Membership → Presence/Typing →
// Registry → Router → Hub → Gateway/API → HTTP
type Application struct {
	config     *config.Config
	store      interfaces.Store
	resolver   *auth.Resolver
	sessions   *session.Manager
	typing     *typing.Coordinator
	registry   *websocket.Registry
	messageHub *hub.Hub
	wsHandler  *websocket.Handler
	handler    http.Handler
	httpServer *http.Server

	snapshotter *presence.Snapshotter
	redisStore  *presence.RedisStore
	asynqSink   *notify.AsynqSink
	cancel      context.CancelFunc

	shutdownMetrics func(context.Context) error
}

// NewApplication creates a new application instance with all components initialized
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	app := &Application{config: cfg, store: store}
	if err := app.wire(); err != nil {
		app.closeResources()
		return nil, err
	}
	return app, nil
}

func openStore(cfg *config.DatabaseConfig) (interfaces.Store, error) {
	if cfg.Path == MemoryDatabasePath {
		log.Println("Using in-memory store")
		return memstore.New(), nil
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Path
	dbConfig.ConnMaxLifetime = cfg.Timeout
	dbConfig.ConnMaxIdleTime = cfg.Timeout / 3
	dbConfig.WriteTimeout = cfg.Timeout
	dbConfig.MigrationsPath = cfg.MigrationsPath

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	if err := dbManager.Migrate(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")
	return dbManager, nil
}

func (app *Application) wire() error {
	cfg := app.config

	var err error
	app.shutdownMetrics, err = telemetry.Setup(context.Background(), cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, cfg.Telemetry.ExportInterval)
	if err != nil {
		return fmt.Errorf("failed to initialize metric export: %w", err)
	}

	metrics, err := telemetry.New(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	app.resolver = auth.NewResolver(app.store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	app.sessions = session.NewManager(app.store, cfg.Debate.AllowCreatorConnect)
	members := membership.NewManager(app.store)
	messages := messagelog.New(app.store, messagelog.Options{
		RequireOngoing: cfg.Debate.RequireOngoingToPost,
		CreatorCanPost: cfg.Debate.CreatorCanPost,
		MaxLength:      cfg.Debate.MaxMessageLength,
	})

	tracker := presence.NewTracker(members)
	app.typing = typing.NewCoordinator(cfg.Debate.TypingTimeout, nil)

	var sink interfaces.NotificationSink = notify.LogSink{}
	if cfg.Redis.URL != "" {
		app.redisStore, err = presence.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.snapshotter = presence.NewSnapshotter(tracker, app.redisStore, cfg.Redis.SnapshotInterval, cfg.Redis.SnapshotTTL)

		app.asynqSink, err = notify.NewAsynqSink(cfg.Redis.URL, cfg.Notifications.Queue, cfg.Notifications.MaxRetry)
		if err != nil {
			return fmt.Errorf("failed to initialize notification queue: %w", err)
		}
		sink = app.asynqSink
	}

	app.registry = websocket.NewRegistry()
	broadcaster := router.NewRouter(app.registry, metrics)

	app.messageHub = hub.NewHub(hub.Dependencies{
		Sessions:    app.sessions,
		Members:     members,
		Presence:    tracker,
		Typing:      app.typing,
		Messages:    messages,
		Broadcaster: broadcaster,
		Connections: app.registry,
		Sink:        sink,
		Limiter:     hub.NewRateLimiter(cfg.Debate.RateLimitPerMinute, time.Minute),
		Metrics:     metrics,
	})

	app.wsHandler = websocket.NewHandler(app.resolver, app.sessions, app.registry, app.messageHub, websocket.HandlerOptions{
		ReadTimeout: cfg.WebSocket.ReadTimeout,
		Connection: websocket.ConnectionOptions{
			SendBuffer:   cfg.WebSocket.BufferSize,
			WriteTimeout: cfg.WebSocket.WriteTimeout,
			PingInterval: cfg.WebSocket.PingInterval,
		},
	})

	apiServer := api.NewServer(api.Dependencies{
		Resolver:   app.resolver,
		Sessions:   app.sessions,
		Members:    members,
		Messages:   messages,
		Presence:   tracker,
		Moderation: moderation.NewService(app.store, members),
		Registry:   app.registry,
		Health:     app.store,
		Hub:        app.messageHub,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("GET /ws/debate/{sessionID}/", app.wsHandler.HandleWebSocket)
	app.handler = mux

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return nil
}

// Start runs the background workers and the HTTP listener
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting debatehall on %s", app.httpServer.Addr)

	if err := app.StartWorkers(ctx); err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.stopWorkers()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("debatehall started successfully")
		return nil
	case <-ctx.Done():
		app.stopWorkers()
		return ctx.Err()
	}
}

// StartWorkers runs the hub and the optional presence snapshotter without
// opening a listener. Tests serve Handler themselves.
func (app *Application) StartWorkers(ctx context.Context) error {
	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel
	if app.snapshotter != nil {
		go app.snapshotter.Run(workerCtx)
	}
	return nil
}

func (app *Application) stopWorkers() {
	if app.cancel != nil {
		app.cancel()
	}
	if err := app.messageHub.Stop(); err != nil {
		log.Printf("Event hub shutdown error: %v", err)
	}
}

// Stop gracefully shuts down the application in reverse dependency order
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down debatehall")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// hijacked connections are not covered by http.Server.Shutdown
	if err := app.wsHandler.Shutdown(ctx); err != nil {
		log.Printf("WebSocket shutdown error: %v", err)
	}

	app.stopWorkers()
	app.closeResources()

	log.Printf("debatehall shutdown complete")
	return nil
}

func (app *Application) closeResources() {
	if app.typing != nil {
		app.typing.Close()
	}
	if app.asynqSink != nil {
		if err := app.asynqSink.Close(); err != nil {
			log.Printf("Notification queue shutdown error: %v", err)
		}
	}
	if app.redisStore != nil {
		if err := app.redisStore.Close(); err != nil {
			log.Printf("Redis shutdown error: %v", err)
		}
	}
	if err := app.store.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}
	if app.shutdownMetrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.shutdownMetrics(ctx); err != nil {
			log.Printf("Metric export shutdown error: %v", err)
		}
	}
}

// Handler serves the REST API, health check and real-time gateway
func (app *Application) Handler() http.Handler {
	return app.handler
}

// Store exposes the durable store for seeding users and topics
func (app *Application) Store() interfaces.Store {
	return app.store
}

// Sessions exposes topic and session management
func (app *Application) Sessions() *session.Manager {
	return app.sessions
}

// Auth exposes the token resolver for issuing bearer tokens
func (app *Application) Auth() *auth.Resolver {
	return app.resolver
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
