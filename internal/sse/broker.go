package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/metrics"
	redisclient "github.com/Nekit-S/drowsiness-detection/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	// DispatcherTopic receives the events of every driver.
	DispatcherTopic = "*"

	clientBufferSize = 100
)

const (
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
	EventLogged         = "event_logged"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Topic  string
	Events chan Event
	Done   chan struct{}
}

// Broker fans events out to SSE clients. With a Redis client every instance
// sees every publish; without one, fan-out stays in process.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // topic -> set of clients
	relays  map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		relays:  make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe registers a client for a driver ID or DispatcherTopic.
func (b *Broker) Subscribe(topic string) *Client {
	client := &Client{
		Topic:  topic,
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[topic] == nil {
		b.clients[topic] = make(map[*Client]bool)
		if b.redis != nil {
			relayCtx, cancel := context.WithCancel(b.ctx)
			b.relays[topic] = cancel
			go b.subscribeToRedis(relayCtx, topic)
		}
	}
	b.clients[topic][client] = true
	clientCount := len(b.clients[topic])
	b.mu.Unlock()

	metrics.StreamClients.Inc()
	log.Info().
		Str("topic", topic).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.Topic]; ok {
		if _, ok := clients[client]; !ok {
			return
		}
		delete(clients, client)
		close(client.Done)
		metrics.StreamClients.Dec()

		if len(clients) == 0 {
			delete(b.clients, client.Topic)
			if cancel, ok := b.relays[client.Topic]; ok {
				cancel()
				delete(b.relays, client.Topic)
			}
		}

		log.Info().
			Str("topic", client.Topic).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// Publish delivers event to the driver's subscribers and to the dispatcher topic.
func (b *Broker) Publish(ctx context.Context, driverID string, event Event) error {
	if b.redis == nil {
		b.broadcast(driverID, event)
		b.broadcast(DispatcherTopic, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.DriverChannel(driverID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, topic string) {
	var channel string
	var pubsub *goredis.PubSub
	if topic == DispatcherTopic {
		channel = redisclient.AllDriversPattern
		pubsub = b.redis.PSubscribe(ctx, channel)
	} else {
		channel = redisclient.DriverChannel(topic)
		pubsub = b.redis.Subscribe(ctx, channel)
	}
	defer pubsub.Close()

	log.Debug().
		Str("topic", topic).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(topic, event)
		}
	}
}

func (b *Broker) broadcast(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[topic] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("topic", topic).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
			metrics.StreamClients.Dec()
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.relays = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[topic])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
