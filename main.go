package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CrowderSoup/taskmaster/database"
	"github.com/CrowderSoup/taskmaster/handlers"
	"github.com/CrowderSoup/taskmaster/services"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

func main() {
	seed := flag.Bool("seed", false, "load demo data (testuser/password) before serving")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *seed); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func run(ctx context.Context, cfg Config, log *logrus.Logger, seed bool) error {
	// Initialize database
	db, err := database.InitDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	store := database.NewStore(db)
	log.WithField("driver", cfg.DBDriver).Info("Database initialized successfully")

	// Initialize services
	tokens, err := services.NewTokenIssuer(services.TokenConfig{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}
	hasher := services.NewPasswordHasher()
	authService := services.NewAuthService(store, hasher, tokens, log)
	guard := services.NewOwnershipGuard(store)
	boardService := services.NewBoardService(store, guard)
	taskService := services.NewTaskService(store, guard)

	if seed {
		if err := seedDemoData(ctx, store, hasher, log); err != nil {
			return err
		}
	}

	deps := handlers.Deps{
		Auth:   authService,
		Boards: boardService,
		Tasks:  taskService,
		Store:  store,
		Log:    log,
	}
	if cfg.RedisAddr != "" {
		if limiter := services.NewRateLimiter(cfg.RedisAddr, cfg.RateLimitRPS, cfg.RateLimitBurst, log); limiter != nil {
			defer limiter.Close()
			deps.Limiter = limiter
		}
	}

	r := handlers.NewRouter(cfg.APIPrefix, deps)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server starting on port %s", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func seedDemoData(ctx context.Context, store *database.Store, hasher *services.PasswordHasher, log logrus.FieldLogger) error {
	hash, err := hasher.Hash("password")
	if err != nil {
		return err
	}
	created, err := store.Seed(ctx, hash)
	if err != nil {
		return err
	}
	if created {
		log.Infof("Seeded demo data for %s", database.SeedUsername)
	} else {
		log.Infof("Demo user %s already exists, skipping seed", database.SeedUsername)
	}
	return nil
}
