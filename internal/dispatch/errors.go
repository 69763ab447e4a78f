package dispatch

import "errors"

// Errors returned by Dispatcher and Client operations. The transport layer
// maps each of these to an error ServerResponse; none of them tears down the
// connection.
var (
	// ErrUnknownClient is returned when an operation references a client id
	// that is not registered or has already been removed.
	ErrUnknownClient = errors.New("unknown client")

	// ErrDuplicateClient is returned by AddClient when the requested id is
	// already registered.
	ErrDuplicateClient = errors.New("client already registered")

	// ErrEmptyChannelName is returned when a subscribe or unsubscribe names
	// an empty channel.
	ErrEmptyChannelName = errors.New("empty channel name")

	// ErrNotSubscribed is returned when a client unsubscribes from a channel
	// it is not a member of.
	ErrNotSubscribed = errors.New("not subscribed to channel")

	// ErrClientClosed is returned when enqueueing to a client whose queue has
	// been closed.
	ErrClientClosed = errors.New("client connection closed")

	// ErrQueueFull is returned by TryEnqueue when the client's outbound queue
	// has no free capacity.
	ErrQueueFull = errors.New("client queue full")
)
