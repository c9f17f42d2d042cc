package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const RelayChannel = "threadline:events"

// Relay mirrors every local publish onto a redis channel and replays events
// published by other instances into the local broker.
type Relay struct {
	broker  *Broker
	rdb     *redis.Client
	channel string
	origin  string
	now     func() time.Time
}

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Topic   string          `json:"topic"`
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewRelay(broker *Broker, rdb *redis.Client) *Relay {
	return &Relay{
		broker:  broker,
		rdb:     rdb,
		channel: RelayChannel,
		origin:  uuid.NewString(),
		now:     time.Now,
	}
}

// Publish stamps and encodes ev once, delivers it locally, then mirrors the
// same bytes to redis. The redis leg is best-effort.
func (r *Relay) Publish(topic string, ev Event) error {
	msg, err := Encode(topic, ev, r.now())
	if err != nil {
		return err
	}
	if err := r.broker.Deliver(msg); err != nil {
		return err
	}
	env, err := json.Marshal(relayEnvelope{
		Origin:  r.origin,
		Topic:   topic,
		Type:    msg.Type,
		Payload: msg.Payload,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, env).Err(); err != nil {
		log.Printf("⚠️ [relay] failed to mirror %s on %s: %v", ev.Type, topic, err)
	}
	return nil
}

// Run consumes the relay channel until ctx is cancelled. The returned
// channel is closed once the subscription is established.
func (r *Relay) Run(ctx context.Context) <-chan struct{} {
	ready := make(chan struct{})

	go func() {
		pubsub := r.rdb.Subscribe(ctx, r.channel)
		defer pubsub.Close()

		if _, err := pubsub.Receive(ctx); err != nil {
			log.Printf("❌ [relay] subscribe %s failed: %v", r.channel, err)
			close(ready)
			return
		}
		close(ready)
		log.Printf("📡 [relay] listening on %s", r.channel)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					log.Printf("⚠️ [relay] malformed envelope: %v", err)
					continue
				}
				if env.Origin == r.origin {
					continue
				}
				if err := r.broker.Deliver(Message{Topic: env.Topic, Type: env.Type, Payload: env.Payload}); err != nil {
					return
				}
			}
		}
	}()

	return ready
}
