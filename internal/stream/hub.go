// Package stream fans snapshots, notifications and monitor status out to
// live consumers such as WebSocket connections.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
)

// Topic names an event stream.
type Topic string

const (
	TopicFunds         Topic = "funds"
	TopicNotifications Topic = "notifications"
	TopicStatus        Topic = "status"
)

// Event is one message delivered to subscribers.
type Event struct {
	Topic        Topic                  `json:"topic"`
	Funds        []*models.FundSnapshot `json:"funds,omitempty"`
	Notification *models.Notification   `json:"notification,omitempty"`
	Status       interface{}            `json:"status,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal event buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of consecutive drops before
	// a subscriber is logged as slow.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:                256,
		SubscriberBufferSize:      16,
		SlowConsumerDropThreshold: 10,
	}
}

// Subscription is one consumer of the hub.
type Subscription struct {
	ID        string
	C         <-chan Event
	CreatedAt time.Time

	ch      chan Event
	topics  map[Topic]bool
	dropped int
}

func (s *Subscription) wants(t Topic) bool {
	return len(s.topics) == 0 || s.topics[t]
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received    uint64 `json:"received"`
	Broadcast   uint64 `json:"broadcast"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Hub distributes events from publishers to subscribers. Publishing never
// blocks: events are dropped when the hub buffer or a subscriber buffer is
// full.
type Hub struct {
	config HubConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscription
	events      chan Event
	done        chan struct{}
	started     bool
	stopped     bool

	metricsMu sync.Mutex
	metrics   HubMetrics
}

// NewHub creates a stopped Hub.
func NewHub(config HubConfig, logger zerolog.Logger) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultHubConfig().BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config:      config,
		logger:      logging.WithComponent(logger, "stream"),
		subscribers: make(map[string]*Subscription),
		events:      make(chan Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the distribution loop. It returns immediately; the loop ends
// when ctx is cancelled or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started || h.stopped {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.loop(ctx)
}

func (h *Hub) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.done:
			return
		case ev := <-h.events:
			h.metricsMu.Lock()
			h.metrics.Received++
			h.metricsMu.Unlock()
			h.broadcast(ev)
		}
	}
}

// Stop ends the loop and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.done)
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}

// Subscribe registers a consumer for topics, or for every topic when none
// is given. An existing subscription with the same id is replaced.
func (h *Hub) Subscribe(id string, topics ...Topic) *Subscription {
	ch := make(chan Event, h.config.SubscriberBufferSize)
	sub := &Subscription{
		ID:        id,
		C:         ch,
		CreatedAt: time.Now(),
		ch:        ch,
		topics:    make(map[Topic]bool, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		close(ch)
		return sub
	}
	if old, ok := h.subscribers[id]; ok {
		close(old.ch)
	}
	h.subscribers[id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.subscribers[sub.ID]; ok && cur == sub {
		close(sub.ch)
		delete(h.subscribers, sub.ID)
	}
}

// Publish queues ev for distribution. It reports false when the event was
// dropped because the hub is stopped or its buffer is full.
func (h *Hub) Publish(ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return false
	}

	select {
	case h.events <- ev:
		return true
	default:
		h.metricsMu.Lock()
		h.metrics.Dropped++
		h.metricsMu.Unlock()
		return false
	}
}

// PublishFunds publishes a snapshot. Its signature matches a monitor
// subscriber callback.
func (h *Hub) PublishFunds(funds []*models.FundSnapshot) error {
	h.Publish(Event{Topic: TopicFunds, Funds: funds})
	return nil
}

// PublishStatus publishes a monitor status value.
func (h *Hub) PublishStatus(status interface{}) {
	h.Publish(Event{Topic: TopicStatus, Status: status})
}

// broadcast hands ev to every interested subscriber without blocking.
func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var sent, dropped uint64
	for _, sub := range h.subscribers {
		if !sub.wants(ev.Topic) {
			continue
		}
		select {
		case sub.ch <- ev:
			sub.dropped = 0
			sent++
		default:
			sub.dropped++
			dropped++
			if sub.dropped == h.config.SlowConsumerDropThreshold {
				h.logger.Warn().Str("subscriber", sub.ID).Int("dropped", sub.dropped).Msg("Slow stream consumer")
			}
		}
	}

	h.metricsMu.Lock()
	h.metrics.Broadcast += sent
	h.metrics.Dropped += dropped
	h.metricsMu.Unlock()
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Metrics returns a snapshot of the hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.Lock()
	m := h.metrics
	h.metricsMu.Unlock()
	m.Subscribers = h.SubscriberCount()
	return m
}

// NotificationChannel publishes notifications on the hub. It satisfies the
// notify channel interface.
type NotificationChannel struct {
	hub *Hub
}

// NewNotificationChannel wraps hub.
func NewNotificationChannel(hub *Hub) *NotificationChannel {
	return &NotificationChannel{hub: hub}
}

// Name returns the channel name.
func (c *NotificationChannel) Name() string { return "stream" }

// IsEnabled reports whether anyone is listening.
func (c *NotificationChannel) IsEnabled() bool {
	return c.hub.SubscriberCount() > 0
}

// Send publishes n. A full buffer drops the event silently.
func (c *NotificationChannel) Send(ctx context.Context, n models.Notification) error {
	c.hub.Publish(Event{Topic: TopicNotifications, Notification: &n, Timestamp: n.Timestamp})
	return nil
}
