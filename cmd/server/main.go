package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barbeintiaden/photo-archive/internal/api"
	"barbeintiaden/photo-archive/internal/cache"
	"barbeintiaden/photo-archive/internal/config"
	"barbeintiaden/photo-archive/internal/logging"
	"barbeintiaden/photo-archive/internal/metrics"
	"barbeintiaden/photo-archive/internal/repository"
	"barbeintiaden/photo-archive/internal/repository/memory"
	"barbeintiaden/photo-archive/internal/repository/mongo"
	"barbeintiaden/photo-archive/internal/repository/postgres"
	"barbeintiaden/photo-archive/internal/service"
	"barbeintiaden/photo-archive/internal/storage"
	"barbeintiaden/photo-archive/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "engine", cfg.Database.Engine, "storage", cfg.Storage.Backend)

	metrics.Register()

	// --- Metadata store ---
	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	store, err := openMetadataStore(startCtx, cfg.Database)
	cancelStart()
	if err != nil {
		slog.Error("could not open metadata store", "engine", cfg.Database.Engine, "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			slog.Error("failed to close metadata store", "error", err)
		}
	}()

	// --- Object store ---
	// Connected lazily on the first upload or image read.
	connect, err := storage.NewConnector(cfg.Storage)
	if err != nil {
		slog.Error("could not configure storage", "error", err)
		os.Exit(1)
	}
	blobs := storage.NewBlobStore(storage.NewSession(connect), storage.BlobOptions{
		Root:          cfg.Storage.Root,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})

	listings, err := cache.NewListing(cfg.Cache.Size, cfg.Cache.TTL)
	if err != nil {
		slog.Error("could not create listing cache", "error", err)
		os.Exit(1)
	}

	// --- Services ---
	gate := validation.NewGate(nil)
	authService := service.NewAuthService(store, cfg.Auth.JWTSecret)
	photoService := service.NewPhotoService(store, blobs, gate, listings)
	commentService := service.NewCommentService(store, gate, listings)
	adminService := service.NewAdminService(store, gate)

	// --- Routes ---
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(), metrics.Middleware())
	api.SetupRoutes(router, api.Dependencies{
		AuthService:     authService,
		PhotoService:    photoService,
		CommentService:  commentService,
		AdminService:    adminService,
		Images:          blobs,
		Listings:        listings,
		Issuer:          cfg.Auth.Issuer,
		MaxUploadMemory: cfg.Server.MaxUploadMemory,
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	if err := serve(server, quit, 5*time.Second); err != nil {
		slog.Error("server stopped", "error", err)
		exitCode = 1
		return
	}
	slog.Info("server exiting")
}

// serve runs server until a signal arrives on quit or the listener fails.
// Listener errors are returned to the caller.
func serve(server *http.Server, quit <-chan os.Signal, grace time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
		slog.Info("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

// openMetadataStore connects the engine named in cfg and prepares its schema.
func openMetadataStore(ctx context.Context, cfg config.DatabaseConfig) (repository.MetadataStore, error) {
	switch cfg.Engine {
	case "postgres":
		pc := postgres.PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns}
		scoped, err := postgres.Connect(ctx, cfg.URL, pc)
		if err != nil {
			return nil, fmt.Errorf("connecting scoped pool: %w", err)
		}
		privileged, err := postgres.Connect(ctx, cfg.ServiceURL, pc)
		if err != nil {
			scoped.Close()
			return nil, fmt.Errorf("connecting service pool: %w", err)
		}
		store, err := postgres.NewStore(scoped, privileged)
		if err != nil {
			scoped.Close()
			privileged.Close()
			return nil, err
		}
		if cfg.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close(ctx)
				return nil, fmt.Errorf("ensuring schema: %w", err)
			}
		}
		return store, nil

	case "mongo":
		client, err := mongo.ConnectDB(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		store := mongo.NewStore(client, client.Database(cfg.MongoName), mongo.Options{Transactions: cfg.MongoTransactions})
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("ensuring indexes: %w", err)
		}
		return store, nil

	case "memory":
		slog.Warn("using the in-memory metadata store; data is lost on restart")
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown database engine %q", cfg.Engine)
}
