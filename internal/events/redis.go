package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRelay mirrors events between instances over a Redis pub/sub channel.
// Local events are published to Redis; events from other origins are
// re-published on the local bus with their origin preserved, so live views
// refresh everywhere while only the originating instance dispatches pushes.
type RedisRelay struct {
	rdb     *redis.Client
	bus     *Bus
	channel string
	log     zerolog.Logger
}

// NewRedisRelay creates a relay for bus on channel
func NewRedisRelay(rdb *redis.Client, bus *Bus, channel string, log zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = "marshmallow:events"
	}
	return &RedisRelay{rdb: rdb, bus: bus, channel: channel, log: log}
}

// Run relays until ctx is canceled or the Redis subscription fails
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	local := r.bus.Subscribe("redis-relay")
	defer local.Close()

	errc := make(chan error, 1)
	go func() { errc <- r.forward(ctx, local) }()

	r.log.Info().Str("channel", r.channel).Str("origin", r.bus.Origin()).Msg("event relay started")

	remote := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case msg, ok := <-remote:
			if !ok {
				return errors.New("redis event channel closed")
			}
			r.inject([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, local *Subscription) error {
	for {
		evt, err := local.Next(ctx)
		if err != nil {
			return err
		}
		if evt.Origin != r.bus.Origin() {
			continue
		}
		data, err := json.Marshal(evt)
		if err != nil {
			r.log.Error().Err(err).Str("event_id", evt.EventID).Msg("Failed to encode event for relay")
			continue
		}
		if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
			r.log.Error().Err(err).Str("event_id", evt.EventID).Msg("Failed to relay event")
		}
	}
}

// inject republishes a remote event locally. Own events echoed back by Redis are dropped.
func (r *RedisRelay) inject(payload []byte) bool {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		r.log.Warn().Err(err).Msg("Dropping malformed relayed event")
		return false
	}
	if evt.Origin == "" || evt.Origin == r.bus.Origin() {
		return false
	}
	r.bus.Publish(evt)
	return true
}
