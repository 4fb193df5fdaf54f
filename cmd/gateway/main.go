package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/thejerf/suture/v4"

	"pageviews/internal/fanout"
	"pageviews/internal/http/handlers"
	"pageviews/internal/http/httpapi"
	"pageviews/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "gateway")
	if err := cfg.ValidateGateway(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	policy, err := fanout.NewPolicy(cfg.QueuePolicy, cfg.QueueNames)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid queue policy")
	}
	distributor := fanout.NewDistributor(fanout.NewJetStreamConnector(cfg.NATSURL, 0, logger), policy, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := suture.New("gateway", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn().Fields(e.Map()).Msg(e.String())
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   5 * time.Second,
		Timeout:          10 * time.Second,
	})
	sup.Add(distributor)
	supDone := sup.ServeBackground(ctx)

	app := handlers.NewGatewayApp(distributor, logger)
	server := infra.NewHTTPServer(cfg, cfg.GatewayPort, httpapi.NewGatewayRouter(app, cfg, logger))

	logger.Info().
		Str("addr", server.Addr()).
		Strs("queues", cfg.QueueNames).
		Str("policy", cfg.QueuePolicy).
		Msg("gateway listening")
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	stop()

	if err := <-supDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
	distributor.Close()
	logger.Info().Msg("gateway stopped")
}
