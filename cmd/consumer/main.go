package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/streamhouse/eventpipe/internal/config"
	"github.com/streamhouse/eventpipe/internal/consumer"
	"github.com/streamhouse/eventpipe/internal/dlq"
	"github.com/streamhouse/eventpipe/internal/natsutil"
	"github.com/streamhouse/eventpipe/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := config.FromEnv()
	if err := cfg.ApplyFile(configPath()); err != nil {
		log.Fatal().Err(err).Msg("invalid config file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Connect(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database pool")
	}
	defer db.Close()

	if err := store.EnsureSchemaWithRetry(ctx, db.Pool, cfg.Consumer.StartupAttempts, cfg.Consumer.StartupDelay()); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	nc, js, err := natsutil.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	if err := natsutil.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("failed to provision streams")
	}
	jsConsumer, err := natsutil.EnsureConsumer(ctx, js)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to provision consumer")
	}

	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("database", cfg.DB.Database).
		Msg("starting event consumer")

	clock := clockwork.NewRealClock()
	loop := consumer.NewLoop(
		consumer.NewJetStreamSource(jsConsumer, cfg.Consumer.PollTimeout()),
		store.NewRepository(db.Pool),
		dlq.NewRouter(natsutil.NewPublisher(js), cfg.Consumer.DLQSubject),
		consumer.NewMetrics(clock, cfg.Consumer.ReportInterval()),
		clock,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := loop.Run(ctx); err != nil {
			log.Error().Err(err).Msg("consumption loop failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	cancel()
	<-done
	log.Info().Msg("event consumer shutdown complete")
}

func configPath() string {
	if v := os.Getenv("PIPELINE_CONFIG"); v != "" {
		return v
	}
	return "pipeline.yaml"
}
