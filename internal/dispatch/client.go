// Package dispatch implements the chat dispatch core: the client registry
// entry, the background task runner, and the dispatcher that owns the
// client/channel subscription index.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/dstilesr/mini-chats/internal/protocol"
)

// defaultQueueSize is the outbound buffer per client. Deliveries beyond this
// block their fan-out task until the listener catches up or the send times
// out.
const defaultQueueSize = 256

// tokenEntropyBytes is the entropy used for generated client identities.
const tokenEntropyBytes = 24

// Client is a registry entry for one connected chat client: its identity and
// the FIFO queue of published messages awaiting delivery. The queue is
// multi-producer (any publisher) and single-consumer (the client's listener
// job).
type Client struct {
	id        string
	queue     chan protocol.PublishedMessage
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a registry entry. When name is empty a URL-safe random
// token is generated instead. Uniqueness is not checked here; that is the
// dispatcher's concern.
func NewClient(name string) *Client {
	return NewClientWithQueueSize(name, defaultQueueSize)
}

// NewClientWithQueueSize creates a registry entry with an explicit outbound
// buffer capacity.
func NewClientWithQueueSize(name string, queueSize int) *Client {
	if name == "" {
		name = randomToken()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Client{
		id:    name,
		queue: make(chan protocol.PublishedMessage, queueSize),
		done:  make(chan struct{}),
	}
}

// ID returns the client's identity.
func (c *Client) ID() string {
	return c.id
}

// Enqueue appends a message to the client's outbound queue. It blocks while
// the queue is full and fails with ErrClientClosed once the client has been
// closed, or with the context error when ctx is done first.
func (c *Client) Enqueue(ctx context.Context, msg protocol.PublishedMessage) error {
	// Closed clients fail fast even when the queue has free capacity.
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.queue <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue appends a message without blocking. It returns ErrClientClosed
// when the client has been closed and ErrQueueFull when the queue has no free
// capacity; the caller decides how to handle the slow consumer.
func (c *Client) TryEnqueue(msg protocol.PublishedMessage) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.queue <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrQueueFull
	}
}

// Receive returns the channel the listener job drains. The queue channel is
// never closed; listeners terminate via Done or task cancellation.
func (c *Client) Receive() <-chan protocol.PublishedMessage {
	return c.queue
}

// Done is closed when the client is removed from the registry.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the client as removed, waking blocked producers and the
// listener job. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func randomToken() string {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic("dispatch: reading random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
