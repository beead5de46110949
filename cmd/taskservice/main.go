package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/taskgate/internal/auth"
	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/config"
	"github.com/gosuda/taskgate/internal/dispatch"
	"github.com/gosuda/taskgate/internal/notify"
	"github.com/gosuda/taskgate/internal/store/postgres"
	redisstore "github.com/gosuda/taskgate/internal/store/redis"
	"github.com/gosuda/taskgate/internal/taskservice"
	"github.com/gosuda/taskgate/internal/transport/socket"
	"github.com/gosuda/taskgate/internal/userservice"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	cfg, err := config.LoadService()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	if err := postgres.Migrate(ctx, cfg.Database.DSN()); err != nil {
		return err
	}

	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Notifications need Redis; without it the task service runs silent.
	var notifier taskservice.Notifier
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	switch {
	case err == nil:
		defer pubsub.Close()
		notifier = notify.New(pubsub)
	case cfg.UseRedis:
		return err
	default:
		log.Warn().Err(err).Msg("redis unavailable, notifications disabled")
	}

	taskRouter, err := taskservice.New(store.Tasks(), store.Users(), notifier).Router()
	if err != nil {
		return err
	}
	userRouter, err := userservice.New(auth.NewService(store.Users())).Router()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	listeners := []struct {
		service string
		addr    string
		router  *command.Router
	}{
		{dispatch.ServiceTask, cfg.TaskListen, taskRouter},
		{dispatch.ServiceUser, cfg.UserListen, userRouter},
	}
	for _, l := range listeners {
		if cfg.UseRedis {
			g.Go(func() error { return redisstore.ServeRequests(ctx, pubsub, l.service, l.router) })
		}
		if l.addr == "" {
			continue
		}
		srv := socket.NewServer(l.router)
		if err := srv.Listen(l.addr); err != nil {
			return fmt.Errorf("%s: %w", l.service, err)
		}
		g.Go(func() error { return srv.Serve(ctx) })
	}

	err = g.Wait()
	log.Info().Msg("stopped")
	return err
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
