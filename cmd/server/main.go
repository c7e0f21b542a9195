package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appdeals "dealdesk/internal/application/service/deals"
	"dealdesk/internal/application/service/inbound"
	appnegotiation "dealdesk/internal/application/service/negotiation"
	"dealdesk/internal/application/service/outbox"
	"dealdesk/internal/config"
	"dealdesk/internal/domain/entity/chat"
	"dealdesk/internal/infrastructure/audit"
	"dealdesk/internal/infrastructure/channel"
	"dealdesk/internal/infrastructure/generator"
	"dealdesk/internal/infrastructure/store"
	infrahttp "dealdesk/internal/interfaces/http"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	repo, err := store.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init store: %v", err)
	}
	defer repo.Close()

	settings := store.NewSettings(repo, logger)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	gateway := channel.NewGateway(cfg.Channel.GatewayURL)
	generatorClient := generator.NewClient(cfg.Generator.URL, cfg.Generator.Timeout)

	auditSink, err := audit.NewPublisher(cfg.Rabbit, logger)
	if err != nil {
		logger.Fatalf("failed to init audit publisher: %v", err)
	}
	defer auditSink.Close()

	dealService := appdeals.NewService(repo, repo, settings, auditSink, logger)
	engine := appnegotiation.NewEngine(repo, repo, repo, repo, repo, settings, generatorClient, logger)

	outboxWorker := outbox.NewWorker(repo, repo, gateway, logger, outbox.Config{
		Interval:   cfg.Worker.OutboxInterval,
		BatchSize:  cfg.Worker.OutboxBatch,
		MessageGap: cfg.Worker.MessageGap,
	})

	handleTurn := func(ctx context.Context, first chat.InboundEvent, merged string) {
		if err := engine.HandleInbound(ctx, first, merged); err != nil {
			if errors.Is(err, appnegotiation.ErrNoThread) {
				return
			}
			logger.WithError(err).WithField("sender_id", first.SenderID).Error("inbound turn failed")
		}
	}
	buffer := inbound.NewBuffer(gateway.ResolveEvent, handleTurn, cfg.Worker.MergeWindow, logger)

	consumer, err := channel.NewConsumer(cfg.Rabbit, buffer, logger)
	if err != nil {
		logger.Fatalf("failed to init chat events consumer: %v", err)
	}
	if err := consumer.Start(ctx); err != nil {
		logger.Fatalf("failed to start chat events consumer: %v", err)
	}
	defer consumer.Close()

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	handler := infrahttp.NewHandler(dealService, engine, repo, repo, repo, settings, redisClient, cacheTTL)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return outboxWorker.Run(groupCtx)
	})
	group.Go(func() error {
		return dealService.RunAssignLoop(groupCtx, cfg.Worker.AssignInterval)
	})
	group.Go(func() error {
		return engine.RunInitiateLoop(groupCtx, cfg.Worker.InitiateInterval)
	})
	group.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	<-groupCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Deliver buffered fragments before exit so a restart does not eat a
	// half-typed counterpart message.
	buffer.Flush(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("worker error: %v", err)
	}
	logger.Info("server stopped")
}
