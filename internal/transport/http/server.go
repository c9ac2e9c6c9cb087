package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"imagereview/internal/config"
	"imagereview/internal/database"
	"imagereview/internal/fanout"
	"imagereview/internal/handler"
	"imagereview/internal/redis"
	"imagereview/internal/repository"
	"imagereview/internal/service"
)

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	// 2. Comment store
	commentRepo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. Live fan-out: local hub, relayed through Redis when configured
	hub := fanout.NewHub(cfg.LiveBufferSize)
	defer hub.Close()

	var publisher fanout.Publisher = hub
	if cfg.RedisURL != "" {
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()

		relay := fanout.NewRelay(client, hub)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Printf("[Relay] Stopped: %v", err)
			}
		}()
		publisher = fanout.NewRedisPublisher(client)
		log.Println("Live events relayed through Redis")
	}

	// 4. Services
	commentService := service.NewCommentService(commentRepo, nil, publisher)
	commentService.SetPublishTimeout(cfg.PublishTimeout)
	defer commentService.Wait()

	if cfg.FileDirectoryEnabled() {
		files, err := service.NewR2FileDirectory(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to init file directory: %w", err)
		}
		commentService.SetFileDirectory(files)
		log.Printf("File existence checked against R2 bucket %s", cfg.R2BucketName)
	}

	liveService := service.NewLiveService(hub, nil)

	// 5. HTTP
	router := NewRouter(RouterConfig{
		CommentHandler: handler.NewCommentHandler(commentService),
		LiveHandler:    handler.NewLiveHandler(liveService, cfg.LiveHeartbeat),
		JWTSecret:      cfg.JWTSecret,
	})

	srv := &stdhttp.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Live streams end when their request context (derived from ctx) is done.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// openStore selects the comment store named by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (repository.CommentRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Println("Using in-memory comment store")
		return repository.NewMemoryCommentRepository(), func() {}, nil

	case config.StoreDriverPostgres:
		db, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repository.NewCommentRepository(db), func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
