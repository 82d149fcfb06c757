package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/streamhouse/eventpipe/internal/config"
	"github.com/streamhouse/eventpipe/internal/natsutil"
	"github.com/streamhouse/eventpipe/internal/producer"
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

	nc, js, err := natsutil.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	if err := natsutil.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("failed to provision streams")
	}

	log.Info().Str("nats_url", cfg.NATSURL).Msg("starting event producer")

	gen := producer.NewGenerator(
		natsutil.NewPublisher(js),
		cfg.Producer.MinDelay(),
		cfg.Producer.MaxDelay(),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := gen.Run(ctx); err != nil {
			log.Error().Err(err).Msg("producer failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	cancel()
	<-done
	log.Info().Msg("event producer shutdown complete")
}

func configPath() string {
	if v := os.Getenv("PIPELINE_CONFIG"); v != "" {
		return v
	}
	return "pipeline.yaml"
}
