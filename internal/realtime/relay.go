package realtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	publishTimeout     = 2 * time.Second
	relayQueueSize     = 256
	defaultRelayKey    = "inquiry"
	defaultRetryMin    = 500 * time.Millisecond
	defaultRetryMax    = 30 * time.Second
	recentFallbackSize = 1024
)

type relayEvent struct {
	envelope Envelope
	payload  []byte
}

// RedisRelay fans events out through Redis so that every instance delivers to
// its own hub. While the relay is not subscribed, or when a publish fails,
// events are delivered to the local hub instead.
type RedisRelay struct {
	client *redis.Client
	prefix string
	hub    *Hub
	logger *zap.Logger

	queue      chan relayEvent
	ready      chan struct{}
	readyOnce  sync.Once
	subscribed atomic.Bool
	fallbacks  *recentEvents

	retryMin time.Duration
	retryMax time.Duration
}

func InitRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

func NewRedisRelay(client *redis.Client, prefix string, hub *Hub, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRelayKey
	}
	return &RedisRelay{
		client:    client,
		prefix:    prefix,
		hub:       hub,
		logger:    logger,
		queue:     make(chan relayEvent, relayQueueSize),
		ready:     make(chan struct{}),
		fallbacks: newRecentEvents(recentFallbackSize),
		retryMin:  defaultRetryMin,
		retryMax:  defaultRetryMax,
	}
}

func (r *RedisRelay) EmitNewMessage(threadID int64, message models.Message) {
	r.enqueue(newMessageEnvelope(threadID, message))
}

func (r *RedisRelay) EmitThreadUpdated(threadID int64) {
	r.enqueue(threadUpdatedEnvelope(threadID))
}

// Ready is closed once the first pattern subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

func (r *RedisRelay) Channel(threadID int64) string {
	return r.prefix + ":thread:" + strconv.FormatInt(threadID, 10)
}

func (r *RedisRelay) pattern() string {
	return r.prefix + ":thread:*"
}

// Run keeps the relay subscribed until ctx is cancelled, retrying with a
// capped doubling delay when Redis is unreachable.
func (r *RedisRelay) Run(ctx context.Context) {
	delay := r.retryMin
	for {
		pubsub, err := r.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			relayFailures.WithLabelValues("subscribe").Inc()
			r.logger.Warn("relay subscribe failed, delivering locally",
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, r.retryMax)
			continue
		}

		delay = r.retryMin
		r.consume(ctx, pubsub)
		_ = pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("relay subscription lost, resubscribing")
	}
}

func (r *RedisRelay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	pubsub := r.client.PSubscribe(ctx, r.pattern())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe relay channels: %w", err)
	}
	return pubsub, nil
}

func (r *RedisRelay) consume(ctx context.Context, pubsub *redis.PubSub) {
	publishCtx, stopPublishing := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.publishLoop(publishCtx)
	}()

	r.subscribed.Store(true)
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("realtime relay subscribed", zap.String("pattern", r.pattern()))

	defer func() {
		r.subscribed.Store(false)
		stopPublishing()
		wg.Wait()
		r.drainLocally()
	}()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) newEvent(envelope Envelope) (relayEvent, error) {
	envelope.EventID = uuid.NewString()
	payload, err := encode(envelope)
	if err != nil {
		return relayEvent{}, err
	}
	return relayEvent{envelope: envelope, payload: payload}, nil
}

func (r *RedisRelay) enqueue(envelope Envelope) {
	event, err := r.newEvent(envelope)
	if err != nil {
		r.logger.Error("encode relay event", zap.String("type", envelope.Type), zap.Error(err))
		return
	}

	if !r.subscribed.Load() {
		r.hub.Broadcast(event.envelope.ThreadID, event.envelope.Type, event.payload)
		return
	}

	select {
	case r.queue <- event:
	default:
		relayFailures.WithLabelValues("queue_full").Inc()
		r.logger.Warn("relay queue full, delivering locally", zap.Int64("thread_id", envelope.ThreadID))
		r.hub.Broadcast(event.envelope.ThreadID, event.envelope.Type, event.payload)
	}
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.queue:
			r.publish(ctx, event)
		}
	}
}

// drainLocally hands events still queued when the subscription ends to the
// local hub.
func (r *RedisRelay) drainLocally() {
	for {
		select {
		case event := <-r.queue:
			r.hub.Broadcast(event.envelope.ThreadID, event.envelope.Type, event.payload)
		default:
			return
		}
	}
}

// publish falls back to local delivery on any error. A timed out publish may
// still reach Redis, so the event id is remembered and the echo is skipped.
func (r *RedisRelay) publish(ctx context.Context, event relayEvent) {
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := r.client.Publish(publishCtx, r.Channel(event.envelope.ThreadID), event.payload).Err()
	if err == nil {
		return
	}

	relayFailures.WithLabelValues("publish").Inc()
	r.logger.Warn("relay publish failed, delivering locally",
		zap.Int64("thread_id", event.envelope.ThreadID),
		zap.String("type", event.envelope.Type),
		zap.Error(err),
	)
	r.fallbacks.add(event.envelope.EventID)
	r.hub.Broadcast(event.envelope.ThreadID, event.envelope.Type, event.payload)
}

func (r *RedisRelay) deliver(channel string, payload []byte) {
	envelope, err := decode(payload)
	if err != nil {
		relayFailures.WithLabelValues("decode").Inc()
		r.logger.Warn("drop undecodable relay payload", zap.String("channel", channel), zap.Error(err))
		return
	}

	threadID, err := strconv.ParseInt(channel[strings.LastIndex(channel, ":")+1:], 10, 64)
	if err != nil || threadID != envelope.ThreadID {
		relayFailures.WithLabelValues("decode").Inc()
		r.logger.Warn("drop relay payload with mismatched channel", zap.String("channel", channel))
		return
	}

	if envelope.EventID != "" && r.fallbacks.take(envelope.EventID) {
		r.logger.Debug("skip relay echo of locally delivered event", zap.String("event_id", envelope.EventID))
		return
	}

	r.hub.Broadcast(threadID, envelope.Type, payload)
}

// recentEvents is a bounded set of event ids, oldest evicted first.
type recentEvents struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newRecentEvents(size int) *recentEvents {
	return &recentEvents{
		ids:   make(map[string]struct{}, size),
		order: make([]string, size),
	}
}

func (e *recentEvents) add(id string) {
	if id == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if old := e.order[e.next]; old != "" {
		delete(e.ids, old)
	}
	e.order[e.next] = id
	e.ids[id] = struct{}{}
	e.next = (e.next + 1) % len(e.order)
}

func (e *recentEvents) take(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.ids[id]; !ok {
		return false
	}
	delete(e.ids, id)
	return true
}
