// Package testhelpers provides common utilities and helper functions for
// testing the mini-chats server.
//
// It contains reusable test utilities shared across the integration tests:
// building a full server stack, dialing chat connections, sending protocol
// commands, and reading typed frames off the socket.
package testhelpers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dstilesr/mini-chats/internal/dispatch"
	"github.com/dstilesr/mini-chats/internal/server"
)

// TestOrigin is the Origin header value admitted by the test configuration.
const TestOrigin = "http://localhost:3501"

// Stack bundles a running test server with the dispatcher behind it so tests
// can assert on registry state directly.
type Stack struct {
	Server     *httptest.Server
	Dispatcher *dispatch.Dispatcher
	Runner     *dispatch.TaskRunner
}

// NewStack builds a complete server stack (runner, dispatcher, handler,
// router) on an httptest server. The stack is torn down via t.Cleanup.
func NewStack(t *testing.T) *Stack {
	t.Helper()

	cfg := server.NewConfig().Sanitize()
	runner := dispatch.NewTaskRunner(context.Background())
	metrics := dispatch.NewMetrics(prometheus.NewRegistry())
	dispatcher := dispatch.NewDispatcher(
		runner,
		dispatch.WithMetrics(metrics),
		dispatch.WithSendTimeout(cfg.SendTimeout),
	)

	handler := server.NewHandler(cfg, dispatcher, runner)
	ts := httptest.NewServer(server.SetupRoutes(handler, cfg))

	t.Cleanup(func() {
		ts.Close()
		if err := runner.Shutdown(2 * time.Second); err != nil {
			t.Errorf("Runner shutdown failed: %v", err)
		}
	})

	return &Stack{Server: ts, Dispatcher: dispatcher, Runner: runner}
}

// ConnectURL converts the stack's HTTP base URL to the websocket connect
// endpoint, optionally with a client_name query parameter.
func (s *Stack) ConnectURL(clientName string) string {
	url := "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/api/connect"
	if clientName != "" {
		url += "?client_name=" + clientName
	}
	return url
}

// Dial opens a chat connection with the allowed test origin and returns the
// connection together with the client id assigned in the first response
// frame. The connection is closed via t.Cleanup.
func (s *Stack) Dial(t *testing.T, clientName string) (*websocket.Conn, string) {
	t.Helper()

	conn := s.DialRaw(t, clientName)

	rsp := ReadResponse(t, conn)
	if rsp["status"] != "ok" {
		t.Fatalf("Connection handshake failed: %v", rsp)
	}
	info, _ := rsp["info"].(map[string]any)
	id, _ := info["client_name"].(string)
	if id == "" {
		t.Fatal("Handshake response carried no client_name")
	}
	return conn, id
}

// DialRaw opens a chat connection without consuming the handshake frame.
func (s *Stack) DialRaw(t *testing.T, clientName string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, rsp, err := dialer.Dial(s.ConnectURL(clientName), headers)
	if rsp != nil {
		_ = rsp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial chat endpoint: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendCommand writes one JSON command frame.
func SendCommand(t *testing.T, conn *websocket.Conn, action string, params map[string]any) {
	t.Helper()

	frame := map[string]any{"action": action}
	if params != nil {
		frame["params"] = params
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to send %s command: %v", action, err)
	}
}

// ReadFrame reads the next JSON frame within a timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("Frame is not valid JSON: %v (%s)", err, raw)
	}
	return frame
}

// ReadResponse reads the next frame and asserts it is a command response
// (it carries a status field).
func ReadResponse(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	frame := ReadFrame(t, conn)
	if _, ok := frame["status"]; !ok {
		t.Fatalf("Expected a response frame, got %v", frame)
	}
	return frame
}

// ReadPublished reads the next frame and asserts it is an asynchronous
// published-message notification.
func ReadPublished(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	frame := ReadFrame(t, conn)
	if _, ok := frame["sender"]; !ok {
		t.Fatalf("Expected a published message frame, got %v", frame)
	}
	return frame
}

// ExpectNoFrame asserts that nothing arrives on the connection within the
// given window. The read side of the connection is unusable afterwards, so
// call this only as the final read in a test.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Expected no frame, received: %s", raw)
	}
}

// WaitFor polls cond until it returns true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}
