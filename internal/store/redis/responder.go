package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/command"
)

// ServeRequests answers envelopes published on service's request channel
// with router until ctx is done. Each request is handled on its own
// goroutine; ServeRequests returns after they finish.
func ServeRequests(ctx context.Context, broker Broker, service string, router *command.Router) error {
	requests, cleanup, err := broker.Subscribe(ctx, RequestChannel(service))
	if err != nil {
		return fmt.Errorf("redis.ServeRequests: %s: %w", service, err)
	}
	defer cleanup()

	log.Info().Str("service", service).Str("channel", RequestChannel(service)).Msg("serving requests over redis")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-requests:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				respond(ctx, broker, service, router, msg)
			}()
		}
	}
}

func respond(ctx context.Context, broker Broker, service string, router *command.Router, msg []byte) {
	var f requestFrame
	if err := codec.Unmarshal(msg, &f); err != nil || f.ID == "" || f.ReplyTo == "" {
		// Without a reply channel there is nobody to tell.
		log.Warn().Err(err).Str("service", service).Msg("redis: discarding malformed request frame")
		return
	}

	reply := router.Serve(ctx, f.Envelope)
	out, err := codec.Marshal(replyFrame{ID: f.ID, Reply: reply})
	if err != nil {
		log.Error().Err(err).Str("service", service).Msg("redis: encode reply frame")
		return
	}
	if _, err := broker.Publish(context.WithoutCancel(ctx), f.ReplyTo, out); err != nil {
		log.Error().Err(err).Str("service", service).Msg("redis: publish reply")
	}
}
