// Package protocol defines the JSON wire format exchanged with chat clients:
// the closed set of inbound commands, the synchronous server response, and the
// asynchronous published-message notification.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Command is one of the four parsed client commands. The interface is sealed
// so that every dispatch site switches over a closed set; adding a command
// kind forces each switch to be revisited.
type Command interface {
	isCommand()
}

// SubscribeCommand asks to join a channel.
type SubscribeCommand struct {
	ChannelName string
}

// UnsubscribeCommand asks to leave a channel.
type UnsubscribeCommand struct {
	ChannelName string
}

// PublishCommand asks to send a message to every subscriber of a channel.
type PublishCommand struct {
	ChannelName string
	Content     string
}

// ListCommand asks for the channels the client is currently subscribed to.
type ListCommand struct{}

func (SubscribeCommand) isCommand()   {}
func (UnsubscribeCommand) isCommand() {}
func (PublishCommand) isCommand()     {}
func (ListCommand) isCommand()        {}

// rawRequest is the envelope every inbound frame must decode to. Params are
// pointers so that a missing field is distinguishable from an empty one.
type rawRequest struct {
	Action string `json:"action"`
	Params struct {
		ChannelName *string `json:"channel_name"`
		Content     *string `json:"content"`
	} `json:"params"`
}

// ParseRequest decodes a raw frame into exactly one Command. Malformed JSON,
// an unknown action, or missing/empty required parameters yield an error and
// no Command; validation failures must never reach the dispatcher.
func ParseRequest(data []byte) (Command, error) {
	var req rawRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON request: %w", err)
	}

	switch req.Action {
	case "subscribe":
		if req.Params.ChannelName == nil || *req.Params.ChannelName == "" {
			return nil, fmt.Errorf("subscribe requires a channel name")
		}
		return SubscribeCommand{ChannelName: *req.Params.ChannelName}, nil

	case "unsubscribe":
		if req.Params.ChannelName == nil || *req.Params.ChannelName == "" {
			return nil, fmt.Errorf("unsubscribe requires a channel name")
		}
		return UnsubscribeCommand{ChannelName: *req.Params.ChannelName}, nil

	case "publish":
		if req.Params.ChannelName == nil || *req.Params.ChannelName == "" {
			return nil, fmt.Errorf("publish requires a channel name")
		}
		if req.Params.Content == nil || *req.Params.Content == "" {
			return nil, fmt.Errorf("publish requires message content")
		}
		return PublishCommand{
			ChannelName: *req.Params.ChannelName,
			Content:     *req.Params.Content,
		}, nil

	case "list":
		return ListCommand{}, nil

	case "":
		return nil, fmt.Errorf("no action specified")

	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}

// ServerResponse is the synchronous reply to every command, and the shape
// used to report validation failures.
type ServerResponse struct {
	Status string         `json:"status"`
	Info   map[string]any `json:"info,omitempty"`
}

// OK builds a success response with an optional info payload.
func OK(info map[string]any) ServerResponse {
	return ServerResponse{Status: "ok", Info: info}
}

// Errorf builds an error response with the formatted message under
// info.detail.
func Errorf(format string, args ...any) ServerResponse {
	return ServerResponse{
		Status: "error",
		Info:   map[string]any{"detail": fmt.Sprintf(format, args...)},
	}
}

// PublishedMessage is the asynchronous notification fanned out to channel
// subscribers. Values are immutable once constructed.
type PublishedMessage struct {
	Sender      string `json:"sender"`
	ChannelName string `json:"channel_name"`
	SentAt      string `json:"sent_at"`
	Content     string `json:"content"`
}

// NewPublishedMessage stamps a message with the current UTC time in RFC-3339
// format.
func NewPublishedMessage(sender, channel, content string) PublishedMessage {
	return PublishedMessage{
		Sender:      sender,
		ChannelName: channel,
		SentAt:      time.Now().UTC().Format(time.RFC3339),
		Content:     content,
	}
}
