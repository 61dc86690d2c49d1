package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admin-chat/internal/chat"
	"admin-chat/internal/config"
	"admin-chat/internal/db"
	"admin-chat/internal/events"
	"admin-chat/internal/imagehost"
	myMiddleware "admin-chat/internal/middleware"
	"admin-chat/internal/report"
	"admin-chat/internal/tree"
	"admin-chat/internal/user"
	"admin-chat/internal/voucher"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", ".env", "path to .env file")
	addr := flag.String("addr", "", "http service address (overrides ADDR)")
	flag.Parse()

	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Tree store (Database collaborator)
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()
	logger.Info("store ready", zap.String("backend", cfg.StoreBackend))

	// 2. Optional event publishing
	var notifier chat.Notifier
	if cfg.AMQPURL != "" {
		pub, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal("connect amqp", zap.Error(err))
		}
		defer pub.Close()
		notifier = events.NewNotifier(pub, logger)
		logger.Info("publishing chat events", zap.String("exchange", cfg.AMQPExchange))
	}

	// 3. Users & identity
	userRepo := user.NewRepository(store)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService, logger)

	var validator myMiddleware.TokenValidator
	if cfg.JWTSecret != "" {
		validator = userService
	}
	identity := myMiddleware.NewIdentityMiddleware(validator)

	// 4. Chat
	chatRepo := chat.NewRepository(store)
	aggregator := chat.NewAggregator(chatRepo, userRepo, logger)
	marker := chat.NewReadMarker(chatRepo, notifier, logger)
	uploader := imagehost.NewClient(cfg.ImgBBUploadURL, cfg.ImgBBAPIKey, cfg.UploadTimeout, logger)
	chatHandler := chat.NewHandler(aggregator, chatRepo, marker, userRepo, uploader, notifier, logger)
	reportHandler := report.NewHandler(aggregator, logger)

	// 5. Vouchers
	voucherHandler := voucher.NewHandler(voucher.NewRepository(store), logger)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(cfg.CORSOrigins)))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(identity.Handle)

		r.Get("/ws", chatHandler.ServeWs)

		r.Route("/api", func(r chi.Router) {
			r.Get("/chats", chatHandler.ListChats)
			r.Get("/chats/export.xlsx", reportHandler.ExportChats)
			r.Get("/chats/{id}/messages", chatHandler.GetMessages)
			r.Post("/chats/{id}/messages", chatHandler.SendMessage)
			r.Post("/chats/{id}/read", chatHandler.MarkRead)

			r.Get("/users/{uid}", userHandler.GetProfile)

			r.Get("/vouchers", voucherHandler.List)
			r.Get("/vouchers/{code}", voucherHandler.Get)
			r.Put("/vouchers/{code}", voucherHandler.Put)
			r.Delete("/vouchers/{code}", voucherHandler.Delete)
		})
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*tree.DB, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store, err := tree.NewRedis(ctx, rdb, cfg.RedisPrefix, logger)
		if err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return store, func() {
			store.Close()
			rdb.Close()
		}, nil

	case config.BackendPostgres:
		database, err := db.NewDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := tree.NewPostgres(ctx, database, logger)
		if err != nil {
			database.Close()
			return nil, nil, err
		}
		return store, func() {
			store.Close()
			database.Close()
		}, nil

	default:
		store := tree.NewMemory(logger)
		return store, func() { store.Close() }, nil
	}
}

// corsOptions allows browser consoles on origins. Identity travels in the
// Authorization header, so credentialed requests are never allowed.
func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}
}
