// Package main is the entry point for the MediaStore mediafile gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mediastore/mediastore/internal/auth"
	"github.com/mediastore/mediastore/internal/collection"
	"github.com/mediastore/mediastore/internal/config"
	"github.com/mediastore/mediastore/internal/events"
	"github.com/mediastore/mediastore/internal/handlers"
	"github.com/mediastore/mediastore/internal/jobs"
	"github.com/mediastore/mediastore/internal/logging"
	"github.com/mediastore/mediastore/internal/metrics"
	"github.com/mediastore/mediastore/internal/reconcile"
	"github.com/mediastore/mediastore/internal/server"
	"github.com/mediastore/mediastore/internal/storage"
)

func main() {
	configPath := flag.String("config", "mediastore.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 8080)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	flag.Parse()

	// Development convenience: load .env before the environment is read.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}

	// Initialize structured logging.
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics.Register()

	// Initialize the object store backend based on config.
	var store storage.ObjectStore
	switch cfg.Storage.Backend {
	case "s3", "":
		if cfg.Storage.Bucket == "" {
			fmt.Fprintf(os.Stderr, "storage.bucket is required when backend is 's3'\n")
			os.Exit(1)
		}
		s3Store, s3Err := storage.NewS3Store(context.Background(), storage.S3Options{
			Endpoint:  cfg.Storage.Endpoint,
			Region:    cfg.Storage.Region,
			Bucket:    cfg.Storage.Bucket,
			PathStyle: cfg.Storage.PathStyle,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
		})
		if s3Err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize S3 object store: %v\n", s3Err)
			os.Exit(1)
		}
		store = s3Store
		slog.Info("Object store initialized", "backend", "s3", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
	case "local":
		localStore, localErr := storage.NewLocalStore(cfg.Storage.LocalRoot)
		if localErr != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize local object store: %v\n", localErr)
			os.Exit(1)
		}
		store = localStore
		slog.Info("Object store initialized", "backend", "local", "root", cfg.Storage.LocalRoot)
	default:
		fmt.Fprintf(os.Stderr, "unknown storage backend %q\n", cfg.Storage.Backend)
		os.Exit(1)
	}

	if cfg.Collection.BaseURL == "" {
		fmt.Fprintf(os.Stderr, "collection.base_url (COLLECTION_API_URL) is required\n")
		os.Exit(1)
	}
	collectionClient := collection.NewClient(cfg.Collection.BaseURL)

	var tracker jobs.Tracker = jobs.NopTracker{}
	if cfg.Jobs.BaseURL != "" {
		tracker = jobs.NewClient(cfg.Jobs.BaseURL)
		slog.Info("Job tracking enabled", "base_url", cfg.Jobs.BaseURL)
	}

	// The bus is optional: without brokers, events are dropped and no
	// consumer runs.
	var publisher events.Publisher = events.NopPublisher{}
	var consumer *events.Consumer
	if len(cfg.Bus.Brokers) > 0 {
		kafkaCfg := events.KafkaConfig{
			Brokers: cfg.Bus.Brokers,
			Topic:   cfg.Bus.Topic,
		}
		kafkaPublisher, kafkaErr := events.NewKafkaPublisher(kafkaCfg)
		if kafkaErr != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize Kafka publisher: %v\n", kafkaErr)
			os.Exit(1)
		}
		publisher = kafkaPublisher
		defer kafkaPublisher.Close()

		busHandlers := &events.Handlers{
			Store:      store,
			Bucket:     cfg.Storage.Bucket,
			Collection: collectionClient,
			Creds:      auth.Static(cfg.Auth.StaticToken),
			Extract:    reconcile.ExtractTechnicalMetadata,
		}
		consumer, kafkaErr = events.NewConsumer(kafkaCfg, cfg.Bus.Group, busHandlers)
		if kafkaErr != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize Kafka consumer: %v\n", kafkaErr)
			os.Exit(1)
		}
		defer consumer.Close()
	}

	engine := &reconcile.Engine{
		Store:           store,
		Bucket:          cfg.Storage.Bucket,
		Collection:      collectionClient,
		Publisher:       publisher,
		PublicBaseURL:   cfg.Server.PublicBaseURL,
		CheckDuplicates: cfg.CheckDuplicates(),
	}
	gateway := handlers.NewGateway(engine, store, cfg.Storage.Bucket, tracker)
	srv := server.New(cfg, gateway, store, collectionClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if consumer != nil {
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Event consumer stopped", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("MediaStore listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		// Stop the consumer before the server so no handler races shutdown.
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}
