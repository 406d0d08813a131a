package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trainflow/internal/account"
	"trainflow/internal/api"
	"trainflow/internal/audit"
	"trainflow/internal/cache"
	"trainflow/internal/config"
	"trainflow/internal/httpmiddleware"
	"trainflow/internal/logger"
	"trainflow/internal/mail"
	"trainflow/internal/notify"
	"trainflow/internal/queue"
	"trainflow/internal/report"
	"trainflow/internal/storage"
	"trainflow/internal/store"
	"trainflow/internal/training"
)

// backend is everything the services read and write.
type backend interface {
	training.Repository
	account.Repository
	notify.Store
	audit.Store
	report.Repository
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", "error", err)
	}
}

func runHTTP(cfg config.App, log *logger.Logger) error {
	ctx := context.Background()

	var (
		repo   backend
		health []api.HealthCheck
	)
	if cfg.StoreBackend == "memory" {
		log.Warn("using in-memory store; data is lost on restart")
		repo = store.NewMemory()
	} else {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
		}
		repo = store.NewPostgres(db)
		health = append(health, api.HealthCheck{Name: "db", Check: db.Healthy})
	}

	var redisClient *store.Redis
	if cfg.CacheBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health = append(health, api.HealthCheck{Name: "redis", Check: redisClient.Healthy})
	}

	var c cache.Cache
	switch cfg.CacheBackend {
	case "redis":
		c = cache.NewRedis(redisClient.Client, log)
	case "memory":
		c = cache.NewMemory()
	default:
		c = cache.Noop{}
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// Without a shared queue the API delivers mail itself.
		mq := queue.NewInMemory(256)
		q = mq
		go func() {
			if err := mail.NewConsumer(mq, mail.NewLogTransport(log), cfg.MailFromName, log).Run(ctx); err != nil {
				log.Error("mail consumer stopped", "error", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.MailQueueKey)
	}
	mailer := mail.NewQueueSender(q, cfg.FrontendURL)

	var files storage.Storage
	if cfg.CloudinaryConfigured() {
		files = storage.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("material storage: cloudinary", "cloud", cfg.CloudinaryCloudName)
	} else {
		local, err := storage.NewLocal(cfg.UploadDir, "/uploads")
		if err != nil {
			return err
		}
		files = local
		log.Info("material storage: local", "dir", cfg.UploadDir)
	}

	recorder := audit.NewRecorder(repo, log)
	notifications := notify.NewService(repo)
	trainings := training.NewService(repo, training.Deps{
		Cache:     c,
		Notifier:  notifications,
		Mailer:    mailer,
		Auditor:   recorder,
		Storage:   files,
		ListTTL:   cfg.ListCacheTTL,
		DetailTTL: cfg.DetailCacheTTL,
	}, log)
	accounts := account.NewService(repo, mailer, recorder, account.Config{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		ResetTTL:   cfg.ResetTTL,
	}, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(log, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if _, ok := files.(*storage.Local); ok {
		r.Static("/uploads", cfg.UploadDir)
	}

	api.New(api.Deps{
		Trainings:     trainings,
		Accounts:      accounts,
		Notifications: notifications,
		Audit:         audit.NewQuery(repo),
		Reports:       report.NewService(repo, log),
		Health:        health,
		SigningKey:    cfg.JWTSigningKey,
		Issuer:        cfg.JWTIssuer,
	}, log).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", "error", err)
	}

	log.Info("server exited")
	return nil
}
