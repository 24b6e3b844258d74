package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/cache"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/config"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/kafka"
	natsx "github.com/Mangekyo-Sharingan/BSM-sim/pkg/nats"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/pricing"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/service"
)

// serve 启动定价服务，直到 ctx 取消 (SIGINT/SIGTERM)
func serve(ctx context.Context, cfg *config.Config, engine *pricing.Engine, logger *logrus.Logger) error {
	logger.WithFields(fields(cfg)).Info("🚀 Starting BSM pricing service...")

	if !cfg.NATS.Enabled && !cfg.Kafka.Enabled {
		return fmt.Errorf("%w: serve needs nats or kafka enabled", errUsage)
	}

	// ==========================================================================
	// 1. Redis 报告缓存 (可选)
	// ==========================================================================
	opts := []service.HandlerOption{service.WithLogger(logger)}
	if cfg.Redis.Enabled {
		rc := cache.NewRedisCache(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Prefix:   cfg.Redis.Prefix,
		})
		defer rc.Close()

		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		opts = append(opts, service.WithCache(rc))
		logger.WithField("addr", cfg.Redis.Addr).Info("✅ Redis report cache connected")
	}
	handler := service.NewHandler(engine, opts...)

	// ==========================================================================
	// 2. NATS 请求/应答 + 报告广播
	// ==========================================================================
	if cfg.NATS.Enabled {
		conn, err := natsx.Connect(cfg.NATS.URL, "bsm-pricer")
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer conn.Close()

		srv := natsx.NewServer(conn,
			natsx.ServerConfig{Subject: cfg.NATS.Subject, Queue: cfg.NATS.Queue},
			handler,
			natsx.WithPublisher(natsx.NewPublisher(conn, cfg.NATS.ReportSubject)),
			natsx.WithLogger(logger),
		)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer srv.Close()

		logger.WithFields(logrus.Fields{
			"url":     cfg.NATS.URL,
			"subject": cfg.NATS.Subject,
			"reports": cfg.NATS.ReportSubject,
		}).Info("✅ NATS pricing server started")
	}

	// ==========================================================================
	// 3. Kafka 请求消费 + 应答/报告生产
	// ==========================================================================
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.Kafka.Brokers), logger)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()

		consumer, err := kafka.NewConsumer(
			kafka.DefaultConsumerConfig(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{cfg.Kafka.RequestTopic}),
			kafka.RequestHandler(handler, producer, cfg.Kafka.ResponseTopic, cfg.Kafka.ReportTopic),
			logger,
		)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		consumer.Start()
		defer consumer.Stop()

		logger.WithFields(logrus.Fields{
			"brokers":   cfg.Kafka.Brokers,
			"requests":  cfg.Kafka.RequestTopic,
			"responses": cfg.Kafka.ResponseTopic,
			"reports":   cfg.Kafka.ReportTopic,
		}).Info("✅ Kafka consumer started")
	}

	// ==========================================================================
	// 等待退出信号
	// ==========================================================================
	logger.Info("BSM pricing service is running, press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("🛑 Shutting down...")
	return nil
}
