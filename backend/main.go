package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/internal/alert"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/api"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/archive"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/assistant"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/billing"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/catalog"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/checkout"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/config"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/customer"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/database"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/lock"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/logger"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/migrations"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/orders"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/seed"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Development(), cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}
	st := store.NewSQL(db)

	hub := events.NewHub()
	publisher := events.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafka.Close()
		publisher = append(publisher, kafka)
		log.Info("publishing order events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var locker lock.Locker = lock.NewMemory()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL)
	}

	var alerter alert.Alerter = alert.NewLog(log)
	if cfg.Sentry.DSN != "" {
		s, err := alert.NewSentry(cfg.Sentry.DSN, cfg.AppEnv, log)
		if err != nil {
			log.Fatal("sentry init failed", zap.Error(err))
		}
		defer s.Flush(2 * time.Second)
		alerter = s
	}

	archiveDone := make(chan struct{})
	close(archiveDone)
	if cfg.Mongo.URI != "" {
		client, coll, err := archive.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			log.Fatal("mongodb connection failed", zap.Error(err))
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		arch := archive.NewMongo(coll, log)
		defer arch.Attach(hub)()
		archiveDone = make(chan struct{})
		go func() {
			defer close(archiveDone)
			arch.Run(ctx)
		}()
	}

	cat := catalog.New(st, hub, log)
	customers := customer.NewRegistry(st, log)

	if cfg.Database.SeedPharmacyID != "" {
		n, err := seed.LoadMedicinesFile(ctx, cat, cfg.Database.SeedPharmacyID, cfg.Database.SeedCSV, log)
		if err != nil {
			log.Fatal("seeding catalog failed", zap.Error(err))
		}
		log.Info("catalog seeded", zap.Int("items", n), zap.String("pharmacy_id", cfg.Database.SeedPharmacyID))
	}

	var chat *assistant.Client
	if cfg.Assistant.APIKey != "" {
		chat = assistant.NewClient(assistant.Config{
			Endpoint:     cfg.Assistant.Endpoint,
			APIKey:       cfg.Assistant.APIKey,
			Model:        cfg.Assistant.Model,
			Timeout:      cfg.Assistant.Timeout,
			InitialDelay: cfg.Assistant.InitialDelay,
			MaxRetries:   cfg.Assistant.MaxRetries,
		}, log)
	}

	bills := billing.NewBook(cat, cfg.Billing.TaxRate)
	go bills.RunPruner(ctx, 10*time.Minute, cfg.Billing.IdleTTL, log)

	handler := api.New(api.Deps{
		Store:   st,
		Catalog: cat,
		Bills:   bills,
		Checkout: checkout.NewProcessor(checkout.Deps{
			Store:     st,
			Catalog:   cat,
			Customers: customers,
			Locker:    locker,
			Publisher: publisher,
			Alerter:   alerter,
			Logger:    log,
		}),
		Customers:      customers,
		Orders:         orders.NewService(st, publisher, log),
		Hub:            hub,
		Assistant:      chat,
		Logger:         log,
		Secret:         cfg.Secret,
		AllowedOrigins: cfg.Origins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("vArogra POS server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	<-archiveDone
}
