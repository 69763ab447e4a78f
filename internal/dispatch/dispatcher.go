package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dstilesr/mini-chats/internal/protocol"
)

// defaultSendTimeout bounds how long a single fan-out delivery may wait on a
// full subscriber queue before the message is dropped.
const defaultSendTimeout = 20 * time.Second

// Dispatcher owns the client registry and the bidirectional client/channel
// subscription index, and fans published messages out to subscriber queues
// through the task runner. All registry state is guarded by a single mutex;
// the lock is never held across a queue send.
type Dispatcher struct {
	mu             sync.Mutex
	clients        map[string]*Client
	clientChannels map[string]map[string]struct{}
	channelClients map[string]map[string]struct{}

	runner      *TaskRunner
	metrics     *Metrics
	sendTimeout time.Duration

	// deliverToSender controls whether a publisher receives its own message.
	// The shipped policy is self-exclusion.
	deliverToSender bool
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithSendTimeout bounds each fan-out delivery. Non-positive values keep the
// default.
func WithSendTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.sendTimeout = d
		}
	}
}

// WithMetrics attaches Prometheus collectors to the dispatcher.
func WithMetrics(m *Metrics) Option {
	return func(disp *Dispatcher) {
		disp.metrics = m
	}
}

// WithSenderDelivery makes publishers receive their own messages. Off by
// default.
func WithSenderDelivery(enabled bool) Option {
	return func(disp *Dispatcher) {
		disp.deliverToSender = enabled
	}
}

// NewDispatcher creates a dispatcher that schedules delivery work on runner.
func NewDispatcher(runner *TaskRunner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clients:        make(map[string]*Client),
		clientChannels: make(map[string]map[string]struct{}),
		channelClients: make(map[string]map[string]struct{}),
		runner:         runner,
		sendTimeout:    defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddClient registers a new client and returns its entry. When name is empty
// a random identity is generated. A name that collides with a registered
// client is rejected with ErrDuplicateClient rather than silently replacing
// the existing entry and orphaning its listener.
func (d *Dispatcher) AddClient(name string) (*Client, error) {
	client := NewClient(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.clients[client.ID()]; exists {
		return nil, ErrDuplicateClient
	}

	d.clients[client.ID()] = client
	d.clientChannels[client.ID()] = make(map[string]struct{})
	d.metrics.setClients(len(d.clients))

	log.WithField("client", client.ID()).Info("Client registered")
	return client, nil
}

// Subscribe adds the client to the channel's subscriber set and returns the
// channel's new subscriber count.
func (d *Dispatcher) Subscribe(clientID, channel string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.clients[clientID]; !ok {
		return 0, ErrUnknownClient
	}
	if channel == "" {
		return 0, ErrEmptyChannelName
	}

	subscribers, ok := d.channelClients[channel]
	if !ok {
		subscribers = make(map[string]struct{})
		d.channelClients[channel] = subscribers
		d.metrics.setChannels(len(d.channelClients))
		log.WithField("channel", channel).Debug("Creating new channel")
	}

	subscribers[clientID] = struct{}{}
	d.clientChannels[clientID][channel] = struct{}{}

	log.WithFields(log.Fields{"client": clientID, "channel": channel}).Info("Client subscribed")
	return len(subscribers), nil
}

// Unsubscribe removes the client from the channel's subscriber set. The
// channel entry is deleted the moment its set empties: a channel key exists
// iff it has at least one subscriber. Unsubscribing from a channel the client
// is not a member of returns ErrNotSubscribed and leaves all state untouched.
func (d *Dispatcher) Unsubscribe(clientID, channel string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.clients[clientID]; !ok {
		return ErrUnknownClient
	}
	if channel == "" {
		return ErrEmptyChannelName
	}
	if _, ok := d.clientChannels[clientID][channel]; !ok {
		return ErrNotSubscribed
	}

	d.removeMembershipLocked(clientID, channel)
	log.WithFields(log.Fields{"client": clientID, "channel": channel}).Info("Client unsubscribed")
	return nil
}

// Publish stamps a message and enqueues it to every current subscriber of
// the channel, excluding the sender unless sender delivery is enabled. The
// lock is held only to snapshot the subscriber set; enqueueing never blocks
// the publisher: a subscriber whose queue is full gets its delivery from a
// background task instead. A channel with no (other) subscribers is a
// successful no-op.
func (d *Dispatcher) Publish(clientID, channel, content string) error {
	msg := protocol.NewPublishedMessage(clientID, channel, content)

	d.mu.Lock()
	if _, ok := d.clients[clientID]; !ok {
		d.mu.Unlock()
		return ErrUnknownClient
	}

	targets := make([]*Client, 0, len(d.channelClients[channel]))
	for subscriber := range d.channelClients[channel] {
		if subscriber == clientID && !d.deliverToSender {
			continue
		}
		if client, ok := d.clients[subscriber]; ok {
			targets = append(targets, client)
		}
	}
	d.mu.Unlock()

	d.metrics.incPublished()

	// Enqueue inline, in iteration order, so that serially-issued publishes
	// reach each subscriber's queue in serialization order. Only a slow
	// subscriber with a full queue is handed off to a background task, and
	// only that subscriber's ordering is affected.
	for _, target := range targets {
		target := target
		switch err := target.TryEnqueue(msg); err {
		case nil:
			d.metrics.incDelivered()
			log.WithFields(log.Fields{
				"channel":    channel,
				"subscriber": target.ID(),
			}).Debug("Message dispatched")
		case ErrQueueFull:
			d.runner.Dispatch("deliver", func(ctx context.Context) {
				d.deliver(ctx, target, msg)
			})
			log.WithFields(log.Fields{
				"channel":    channel,
				"subscriber": target.ID(),
			}).Debug("Queue full, delivery dispatched in background")
		default:
			d.metrics.incDropped()
			log.WithFields(log.Fields{
				"subscriber": target.ID(),
				"channel":    channel,
				"error":      err,
			}).Warn("Dropped message delivery")
		}
	}

	return nil
}

// ListChannels returns the channels the client is subscribed to, sorted
// lexicographically.
func (d *Dispatcher) ListChannels(clientID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	channels, ok := d.clientChannels[clientID]
	if !ok {
		return nil, ErrUnknownClient
	}

	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RemoveClient deletes the client record, tears down every channel membership
// it held, and closes its outbound queue. Idempotent: removing an unknown id
// is a no-op.
func (d *Dispatcher) RemoveClient(clientID string) {
	d.mu.Lock()
	client, ok := d.clients[clientID]
	if !ok {
		d.mu.Unlock()
		return
	}

	for channel := range d.clientChannels[clientID] {
		d.removeMembershipLocked(clientID, channel)
	}
	delete(d.clientChannels, clientID)
	delete(d.clients, clientID)
	d.metrics.setClients(len(d.clients))
	d.mu.Unlock()

	client.Close()
	log.WithField("client", clientID).Info("Client removed")
}

// ClientCount reports the number of registered clients.
func (d *Dispatcher) ClientCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

// ChannelCount reports the number of channels with at least one subscriber.
func (d *Dispatcher) ChannelCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channelClients)
}

// Subscribers reports the subscriber count of a channel; zero when the
// channel does not exist.
func (d *Dispatcher) Subscribers(channel string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channelClients[channel])
}

// removeMembershipLocked deletes one direction pair from the index. Caller
// holds the lock.
func (d *Dispatcher) removeMembershipLocked(clientID, channel string) {
	delete(d.clientChannels[clientID], channel)

	subscribers := d.channelClients[channel]
	delete(subscribers, clientID)
	if len(subscribers) == 0 {
		delete(d.channelClients, channel)
		d.metrics.setChannels(len(d.channelClients))
		log.WithField("channel", channel).Debug("Deleting empty channel")
	}
}

// deliver enqueues one message to one subscriber, bounded by the send
// timeout. Timeouts and closed clients drop the message; delivery is
// fire-and-forget from the publisher's point of view.
func (d *Dispatcher) deliver(ctx context.Context, target *Client, msg protocol.PublishedMessage) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := target.Enqueue(sendCtx, msg); err != nil {
		d.metrics.incDropped()
		log.WithFields(log.Fields{
			"subscriber": target.ID(),
			"channel":    msg.ChannelName,
			"error":      err,
		}).Warn("Dropped message delivery")
		return
	}
	d.metrics.incDelivered()
}
