package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/auditportal/internal/application"
	appai "github.com/bryanwahyu/auditportal/internal/application/ai"
	appreviews "github.com/bryanwahyu/auditportal/internal/application/reviews"
	"github.com/bryanwahyu/auditportal/internal/config"
	domai "github.com/bryanwahyu/auditportal/internal/domain/ai"
	"github.com/bryanwahyu/auditportal/internal/domain/engagements"
	"github.com/bryanwahyu/auditportal/internal/domain/reviews"
	"github.com/bryanwahyu/auditportal/internal/infra/ai/openai"
	"github.com/bryanwahyu/auditportal/internal/infra/cache"
	"github.com/bryanwahyu/auditportal/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/auditportal/internal/infra/db/mysql"
	"github.com/bryanwahyu/auditportal/internal/infra/db/postgres"
	"github.com/bryanwahyu/auditportal/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/auditportal/internal/infra/storage"
	"github.com/bryanwahyu/auditportal/internal/logger"
	"github.com/bryanwahyu/auditportal/internal/middleware"
)

// stores is whatever the configured database driver provides.
type stores struct {
	reviews     reviews.Repository
	engagements engagements.Repository
	suggestions domai.SuggestionRepository
	db          *sql.DB // nil for the memory driver
}

func openStores(ctx context.Context, cfg *config.Config, lg *logger.Logger) (*stores, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		return &stores{
			reviews:     postgres.NewReviewRepository(db),
			engagements: postgres.NewEngagementRepository(db),
			suggestions: postgres.NewSuggestionRepository(db),
			db:          db,
		}, nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := mysqlp.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("mysql migrate: %w", err)
			}
		}
		return &stores{
			reviews:     mysqlp.NewReviewRepository(db),
			engagements: mysqlp.NewEngagementRepository(db),
			suggestions: mysqlp.NewSuggestionRepository(db),
			db:          db,
		}, nil
	default:
		lg.Warn("using in-memory storage, data is lost on restart")
		return &stores{
			reviews:     memory.NewReviewRepository(),
			engagements: memory.NewEngagementRepository(),
			suggestions: memory.NewSuggestionRepository(),
		}, nil
	}
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()

	st, err := openStores(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("storage init failed", "driver", cfg.Database.Driver, "error", err)
	}
	if st.db != nil {
		defer st.db.Close()
	}

	health := map[string]middleware.HealthChecker{}
	if st.db != nil {
		health["database"] = middleware.SQLChecker{DB: st.db}
	}

	// engagement lookup lewat redis kalau dikonfigurasi
	var directory reviews.EngagementDirectory = st.engagements
	if cfg.Redis.URL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			lg.Fatal("redis init failed", "error", err)
		}
		defer rdb.Close()
		directory = cache.NewEngagementCache(rdb, st.engagements, cfg.Redis.EngagementTTL, lg)
		health["redis"] = cache.RedisChecker{Client: rdb}
	}

	svc := &appreviews.Service{
		Repo:        st.reviews,
		Engagements: directory,
		Clock:       application.SystemClock{},
		Policy:      cfg.Approval,
		Log:         lg,
	}

	// init minio
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			lg.Fatal("minio init failed", "error", err)
		}
		svc.Archive = store
	}

	var aiSvc *appai.Service
	if cfg.OpenAI.APIKey != "" {
		oc := goopenai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			oc.BaseURL = cfg.OpenAI.BaseURL
		}
		aiSvc = appai.NewService(openai.NewClientWithConfig(oc, cfg.OpenAI.Model), svc, st.suggestions, application.SystemClock{}, lg)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
	defer limiter.Close()

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(httpserver.Options{
		Reviews:     svc,
		AI:          aiSvc,
		Engagements: st.engagements,
		APIKeys:     cfg.Auth.APIKeys,
		CORSOrigins: cfg.Server.CORSOrigins,
		Limiter:     limiter,
		Health:      health,
		Log:         lg,

		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		lg.Info("server listening", "addr", addr, "driver", cfg.Database.Driver,
			"archive", svc.Archive != nil, "ai", aiSvc != nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("server error", "error", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	lg.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		lg.Error("shutdown error", "error", err)
	}
}
