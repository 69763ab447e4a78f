// Package server runs one session per WebSocket connection: it registers the
// client with the dispatcher, spawns the listener job that drains the
// client's outbound queue, and loops over inbound command frames.
package server

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dstilesr/mini-chats/internal/dispatch"
	"github.com/dstilesr/mini-chats/internal/protocol"
)

const writeTimeout = 10 * time.Second

// session couples one WebSocket connection to one registered client. The
// write mutex serializes synchronous command responses with asynchronous
// deliveries from the listener job, since gorilla connections permit a single
// concurrent writer.
type session struct {
	conn       *websocket.Conn
	client     *dispatch.Client
	dispatcher *dispatch.Dispatcher
	runner     *dispatch.TaskRunner
	limiter    *rateLimiter
	writeMu    sync.Mutex
	addr       string
	rateLimit  RateLimitConfig
}

func newSession(conn *websocket.Conn, client *dispatch.Client, dispatcher *dispatch.Dispatcher, runner *dispatch.TaskRunner, cfg Config, addr string) *session {
	return &session{
		conn:       conn,
		client:     client,
		dispatcher: dispatcher,
		runner:     runner,
		limiter:    newRateLimiter(cfg.RateLimit),
		addr:       addr,
		rateLimit:  cfg.RateLimit,
	}
}

// run services the connection until the client disconnects, then performs the
// teardown sequence: cancel the listener job, remove the client from the
// registry, close the socket.
func (s *session) run() {
	s.writeResponse(protocol.OK(map[string]any{"client_name": s.client.ID()}))

	listenerID := s.runner.Dispatch("listener:"+s.client.ID(), s.listen)
	s.readLoop()

	s.runner.Stop(listenerID)
	s.dispatcher.RemoveClient(s.client.ID())
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.WithFields(log.Fields{"client": s.client.ID(), "error": err}).Error("Error closing connection")
	}
	log.WithField("client", s.client.ID()).Info("Session ended")
}

// listen is the per-client listener job: it drains the outbound queue and
// forwards each published message to the socket. It terminates on task
// cancellation, client removal, or a write failure.
func (s *session) listen(ctx context.Context) {
	for {
		select {
		case msg := <-s.client.Receive():
			if !s.writeJSON(msg) {
				log.WithField("client", s.client.ID()).Warn("Write failed, stopping listener")
				return
			}
		case <-s.client.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop processes inbound command frames until the connection drops.
func (s *session) readLoop() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.limiter.allow() {
			log.WithFields(log.Fields{
				"client": s.client.ID(),
				"burst":  s.rateLimit.Burst,
				"per":    s.rateLimit.RefillInterval,
			}).Warn("Rate limit exceeded; discarding message")
			continue
		}

		s.handleFrame(raw)
	}
}

// handleFrame validates one frame and executes the resulting command.
// Validation failures produce an error response and leave dispatcher state
// untouched; they never terminate the session.
func (s *session) handleFrame(raw []byte) {
	cmd, err := protocol.ParseRequest(raw)
	if err != nil {
		log.WithFields(log.Fields{"client": s.client.ID(), "error": err}).Error("Invalid request")
		s.writeResponse(protocol.Errorf("invalid request: %v", err))
		return
	}

	s.writeResponse(s.execute(cmd))
}

// execute runs one parsed command against the dispatcher and builds the
// synchronous response. The switch is exhaustive over the closed command set.
func (s *session) execute(cmd protocol.Command) protocol.ServerResponse {
	clientID := s.client.ID()

	switch cmd := cmd.(type) {
	case protocol.SubscribeCommand:
		total, err := s.dispatcher.Subscribe(clientID, cmd.ChannelName)
		if err != nil {
			return s.errorResponse("subscribe", err)
		}
		return protocol.OK(map[string]any{
			"channel_name":      cmd.ChannelName,
			"total_subscribers": total,
		})

	case protocol.UnsubscribeCommand:
		if err := s.dispatcher.Unsubscribe(clientID, cmd.ChannelName); err != nil {
			return s.errorResponse("unsubscribe", err)
		}
		return protocol.OK(nil)

	case protocol.PublishCommand:
		if err := s.dispatcher.Publish(clientID, cmd.ChannelName, cmd.Content); err != nil {
			return s.errorResponse("publish", err)
		}
		return protocol.OK(nil)

	case protocol.ListCommand:
		channels, err := s.dispatcher.ListChannels(clientID)
		if err != nil {
			return s.errorResponse("list", err)
		}
		return protocol.OK(map[string]any{"channels": channels})

	default:
		// Unreachable while the command set stays closed.
		return protocol.Errorf("unsupported command")
	}
}

func (s *session) errorResponse(op string, err error) protocol.ServerResponse {
	log.WithFields(log.Fields{
		"client":    s.client.ID(),
		"operation": op,
		"error":     err,
	}).Error("Error processing command")
	return protocol.Errorf("%v", err)
}

// writeResponse sends a synchronous response frame, sharing the write mutex
// with the listener job.
func (s *session) writeResponse(rsp protocol.ServerResponse) {
	if !s.writeJSON(rsp) {
		log.WithField("client", s.client.ID()).Error("Failed to write response")
	}
}

func (s *session) writeJSON(v any) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		log.WithFields(log.Fields{"client": s.client.ID(), "error": err}).Error("Error setting write deadline")
		return false
	}
	if err := s.conn.WriteJSON(v); err != nil {
		if !isExpectedCloseError(err) {
			log.WithFields(log.Fields{"client": s.client.ID(), "error": err}).Error("Error writing frame")
		}
		return false
	}
	return true
}

// logReadError classifies the error that ended the read loop.
func (s *session) logReadError(err error) {
	fields := log.Fields{"client": s.client.ID(), "addr": s.addr, "error": err}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.WithFields(fields).Warn("Message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.WithFields(fields).Info("Client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.WithFields(fields).Info("Connection closed")
	default:
		log.WithFields(fields).Error("WebSocket read error")
	}
}

// isExpectedCloseError reports whether a non-nil error is one of the usual
// teardown errors seen while closing a connection. Callers check for nil
// before classifying.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
