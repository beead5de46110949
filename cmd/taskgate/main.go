package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/api/ws"
	"github.com/gosuda/taskgate/internal/config"
	"github.com/gosuda/taskgate/internal/dispatch"
	"github.com/gosuda/taskgate/internal/gateway"
	"github.com/gosuda/taskgate/internal/notify"
	"github.com/gosuda/taskgate/internal/realtime"
	"github.com/gosuda/taskgate/internal/server"
	redisstore "github.com/gosuda/taskgate/internal/store/redis"
	"github.com/gosuda/taskgate/internal/transport/socket"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Redis carries the notification feed and any redis:// services.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		if cfg.Dispatch.UsesRedis() {
			return err
		}
		log.Warn().Err(err).Msg("redis unavailable, notification feed disabled")
		pubsub = nil
	}
	if pubsub != nil {
		defer pubsub.Close()
	}

	transports, err := buildTransports(ctx, cfg.Dispatch.Services, pubsub)
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.New(transports, cfg.Dispatch.Timeout)
	if err != nil {
		return err
	}

	services := cfg.Dispatch.ServiceNames()
	routes, err := dispatch.NewRouteTable(dispatch.RoutesFor(services), services)
	if err != nil {
		return err
	}

	registry := realtime.NewRegistry(realtime.JWTAuthenticator(cfg.JWT.Secret), cfg.Realtime.QueueSize)
	broadcaster := realtime.NewBroadcaster(registry)

	gw := gateway.New(dispatch.NewClient(dispatcher, routes, cfg.Dispatch.Timeout), broadcaster, cfg.JWT.Secret, cfg.JWT.AccessTTL)
	wsHandler := ws.NewHandler(registry, broadcaster, gw, cfg.Realtime.OriginPatterns)

	if pubsub != nil {
		feed, stop, subErr := redisstore.SubscribeNotifications(ctx, pubsub)
		if subErr != nil {
			return subErr
		}
		defer stop()
		go notify.NewForwarder(broadcaster).Run(ctx, feed)
	}

	srv := server.New(ctx, cfg, gw, registry, wsHandler)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Strs("services", services).Msg("starting gateway")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	registry.Close()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("dispatcher close")
	}
	if shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// buildTransports opens one transport per configured service.
func buildTransports(ctx context.Context, endpoints []config.ServiceEndpoint, pubsub *redisstore.PubSub) (map[string]dispatch.Transport, error) {
	transports := make(map[string]dispatch.Transport, len(endpoints))
	for _, ep := range endpoints {
		switch ep.Transport {
		case config.TransportTCP:
			transports[ep.Name] = socket.NewClient(ep.Addr, 0)
		case config.TransportRedis:
			req, err := redisstore.NewRequester(ctx, pubsub, ep.Name, 0)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", ep.Name, err)
			}
			transports[ep.Name] = req
		default:
			return nil, fmt.Errorf("service %s: unknown transport %q", ep.Name, ep.Transport)
		}
		log.Debug().Str("service", ep.Name).Str("transport", ep.Transport).Str("addr", ep.Addr).Msg("transport configured")
	}
	return transports, nil
}

func setupLogging(c config.LogConfig) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
