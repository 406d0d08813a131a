package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"trainflow/internal/config"
	"trainflow/internal/jobs"
	"trainflow/internal/logger"
	"trainflow/internal/mail"
	"trainflow/internal/notify"
	"trainflow/internal/queue"
	"trainflow/internal/store"
)

// backend is what the sweeps read and where their notifications land.
type backend interface {
	jobs.Repository
	notify.Store
}

// Worker delivers queued mail and runs the scheduled reminder sweeps.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	var repo backend
	if cfg.StoreBackend == "memory" {
		log.Warn("using in-memory store; sweeps will see no data written by the api")
		repo = store.NewMemory()
	} else {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("db connect failed", "error", err)
		}
		defer db.Close()
		repo = store.NewPostgres(db)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Warn("redis not reachable yet", "addr", cfg.RedisAddr)
		}
		q = queue.NewRedisQueue(redisClient.Client, cfg.MailQueueKey)
	}

	var transport mail.Transport
	if cfg.SendGridAPIKey != "" {
		sg, err := mail.NewSendGrid(mail.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			BaseURL:   cfg.SendGridBaseURL,
			FromEmail: cfg.MailFrom,
			FromName:  cfg.MailFromName,
		}, log)
		if err != nil {
			log.Fatal("sendgrid init failed", "error", err)
		}
		transport = sg
	} else {
		log.Warn("SENDGRID_API_KEY not set; emails are only logged")
		transport = mail.NewLogTransport(log)
	}

	runner := jobs.NewRunner(repo, notify.NewService(repo), mail.NewQueueSender(q, cfg.FrontendURL), log)
	c, err := runner.Start(jobs.Schedule{
		PreWork:    cfg.PreWorkCron,
		Attendance: cfg.AttendanceCron,
		Feedback:   cfg.FeedbackCron,
		Timeout:    cfg.SweepTimeout,
	})
	if err != nil {
		log.Fatal("sweep schedule failed", "error", err)
	}

	log.Info("worker started, waiting for messages")
	if err := mail.NewConsumer(q, transport, cfg.MailFromName, log).Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("mail consumer stopped", "error", err)
	}

	<-c.Stop().Done()
	log.Info("worker stopped")
}
