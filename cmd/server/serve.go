package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"commerce-sync-engine/internal/audit"
	"commerce-sync-engine/internal/classifier"
	"commerce-sync-engine/internal/config"
	"commerce-sync-engine/internal/conflict"
	"commerce-sync-engine/internal/connector"
	"commerce-sync-engine/internal/connector/rest"
	"commerce-sync-engine/internal/engine"
	"commerce-sync-engine/internal/gateway"
	"commerce-sync-engine/internal/handler"
	"commerce-sync-engine/internal/keylock"
	"commerce-sync-engine/internal/logging"
	"commerce-sync-engine/internal/queue"
	"commerce-sync-engine/internal/repository"
	"commerce-sync-engine/internal/retry"
	"commerce-sync-engine/internal/rpc"
	"commerce-sync-engine/internal/service"
	"commerce-sync-engine/internal/websocket"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine with its HTTP, WebSocket and gRPC endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	logCloser := logging.Setup(logging.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	client, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	recordRepo := repository.NewRecordRepository(client, cfg.Database.Name)
	reviewRepo := repository.NewReviewRepository(client, cfg.Database.Name)
	deadLetterRepo := repository.NewDeadLetterRepository(client, cfg.Database.Name)
	credentialRepo := repository.NewCredentialRepository(client, cfg.Database.Name)

	store := gateway.New(recordRepo, cfg.Cache.Size, cfg.Cache.TTL)

	syncQueue, err := openQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer syncQueue.Close()

	policy := conflict.DefaultPolicy()
	if cfg.Conflict.PolicyFile != "" {
		if policy, err = conflict.LoadPolicy(cfg.Conflict.PolicyFile); err != nil {
			return err
		}
		log.Printf("Loaded conflict policy from %s", cfg.Conflict.PolicyFile)
	}
	resolver := conflict.NewResolver(policy)

	registry, err := newRegistry(cfg.Connectors)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Shutdown(); err != nil {
			log.Printf("Connector shutdown: %v", err)
		}
	}()

	backoff := retry.Backoff{Initial: cfg.Engine.BackoffInitial, Max: cfg.Engine.BackoffMax}
	events := classifier.New()
	ingestService := service.NewIngestService(events, syncQueue)
	deadLetterService := service.NewDeadLetterService(deadLetterRepo, syncQueue, registry)
	credentialService := service.NewCredentialService(credentialRepo, cfg.JWT.Secret, cfg.JWT.Expiration)

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerClient,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	go wsManager.Run(ctx)

	locks := keylock.New()
	reviewService := service.NewReviewService(reviewRepo, store, locks, wsManager)

	emitter := connector.NewEmitter(registry, connector.EmitterConfig{
		OutboxSize:  cfg.Connectors.OutboxSize,
		MaxAttempts: cfg.Engine.MaxAttempts,
		Backoff:     backoff,
	}, deadLetterService)
	emitter.Start(ctx)
	defer emitter.Stop()

	auditSink, err := newAuditSink(ctx, cfg.Audit)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer flushCancel()
		if err := auditSink.Close(flushCtx); err != nil {
			log.Printf("Audit flush failed: %v", err)
		}
	}()

	eng := engine.New(engine.Config{
		TickInterval:       cfg.Engine.TickInterval,
		BatchSize:          cfg.Engine.BatchSize,
		Workers:            cfg.Engine.Workers,
		MaxAttempts:        cfg.Engine.MaxAttempts,
		Backoff:            backoff,
		ReconcileInterval:  cfg.Engine.ReconcileInterval,
		CleanupInterval:    cfg.Engine.CleanupInterval,
		TombstoneRetention: cfg.Engine.TombstoneRetention,
		PauseThreshold:     cfg.Engine.PauseThreshold,
	}, engine.Deps{
		Queue:       syncQueue,
		Store:       store,
		Resolver:    resolver,
		Reviews:     reviewRepo,
		DeadLetters: deadLetterService,
		Locks:       locks,
		Classifier:  events,
		Registry:    registry,
		Notifier:    wsManager,
		Publisher:   emitter,
		Audit:       auditSink,
	})

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	pump := connector.NewPump(registry, ingestService, cfg.Connectors.RestartDelay)
	pump.Start(ctx)

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:      cfg.JWT.Secret,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	}, handler.Handlers{
		Auth:        handler.NewAuthHandler(credentialService),
		Events:      handler.NewEventHandler(ingestService),
		Records:     handler.NewRecordHandler(store),
		Reviews:     handler.NewReviewHandler(reviewService),
		DeadLetters: handler.NewDeadLetterHandler(deadLetterService),
		Stats:       handler.NewStatsHandler(eng, store, registry.Names, wsManager.Connections),
		WebSocket:   handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize),
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	rpc.Register(grpcServer, rpc.NewServer(ingestService, cfg.JWT.Secret))

	serverErr := make(chan error, 2)
	go func() {
		log.Printf("Starting commerce sync engine on %s (env: %s)", addr, cfg.Server.Env)
		log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Printf("gRPC ingestion listening on %s", grpcAddr)
		if err := grpcServer.Serve(lis); err != nil {
			serverErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	engineStopped := false
	select {
	case <-quit:
	case runErr = <-serverErr:
	case runErr = <-engineDone:
		engineStopped = true
	}

	log.Println("Shutting down server...")
	cancel()
	if !engineStopped {
		if err := <-engineDone; err != nil && runErr == nil {
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	pump.Wait()

	log.Println("Server stopped gracefully")
	return runErr
}

func openQueue(ctx context.Context, cfg config.QueueConfig) (*queue.SyncQueue, error) {
	if cfg.JournalPath == "" {
		return queue.New(cfg.Capacity), nil
	}

	journal, err := queue.OpenSQLiteJournal(cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	q := queue.New(cfg.Capacity, queue.WithJournal(journal))
	restored, err := q.Restore(ctx)
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("failed to restore queue journal: %w", err)
	}
	log.Printf("Restored %d events from %s", restored, cfg.JournalPath)
	return q, nil
}

func newRegistry(cfg config.ConnectorsConfig) (*connector.Registry, error) {
	subscribers := make(map[string]bool, len(cfg.Subscribers))
	for _, name := range cfg.Subscribers {
		subscribers[name] = true
	}

	registry := connector.NewRegistry(cfg.Timeout)
	for _, ep := range cfg.Endpoints {
		c := rest.New(rest.Config{
			Platform:     ep.Name,
			BaseURL:      ep.BaseURL,
			Token:        ep.Token,
			PollInterval: cfg.PollInterval,
			HTTPClient:   &http.Client{Timeout: cfg.Timeout},
		})
		if err := registry.Register(c, subscribers[ep.Name]); err != nil {
			return nil, err
		}
		delete(subscribers, ep.Name)
		log.Printf("Registered connector %s (%s)", ep.Name, ep.BaseURL)
	}
	for name := range subscribers {
		return nil, fmt.Errorf("invalid CONNECTOR_SUBSCRIBERS: %q is not a configured connector", name)
	}
	return registry, nil
}

func newAuditSink(ctx context.Context, cfg config.AuditConfig) (audit.Sink, error) {
	if cfg.Bucket == "" {
		return audit.Nop(), nil
	}

	s3Client, err := audit.NewS3Client(ctx, audit.S3Config{
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Archiving audit records to s3://%s/%s", cfg.Bucket, cfg.Prefix)
	return audit.NewArchiver(s3Client, audit.ArchiverConfig{
		Bucket:        cfg.Bucket,
		Prefix:        cfg.Prefix,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}), nil
}
