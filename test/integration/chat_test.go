// Package integration contains end-to-end tests for the mini-chats server.
//
// These tests exercise the complete stack over real WebSocket connections:
// connection handshake, the JSON command protocol, message fan-out, and
// disconnect cleanup.
package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dstilesr/mini-chats/test/testhelpers"
)

// TestPublishDeliversToOtherSubscribers verifies the core chat scenario:
// two clients subscribe to the same channel, one publishes, and only the
// other receives the message.
func TestPublishDeliversToOtherSubscribers(t *testing.T) {
	stack := testhelpers.NewStack(t)

	aliceConn, aliceID := stack.Dial(t, "alice")
	bobConn, _ := stack.Dial(t, "bob")

	testhelpers.SendCommand(t, aliceConn, "subscribe", map[string]any{"channel_name": "general"})
	rsp := testhelpers.ReadResponse(t, aliceConn)
	if rsp["status"] != "ok" {
		t.Fatalf("Subscribe failed: %v", rsp)
	}

	testhelpers.SendCommand(t, bobConn, "subscribe", map[string]any{"channel_name": "general"})
	rsp = testhelpers.ReadResponse(t, bobConn)
	if rsp["status"] != "ok" {
		t.Fatalf("Subscribe failed: %v", rsp)
	}
	info, _ := rsp["info"].(map[string]any)
	if total, _ := info["total_subscribers"].(float64); total != 2 {
		t.Errorf("Expected 2 subscribers, got %v", info["total_subscribers"])
	}

	testhelpers.SendCommand(t, aliceConn, "publish", map[string]any{
		"channel_name": "general",
		"content":      "hi",
	})
	rsp = testhelpers.ReadResponse(t, aliceConn)
	if rsp["status"] != "ok" {
		t.Fatalf("Publish failed: %v", rsp)
	}

	msg := testhelpers.ReadPublished(t, bobConn)
	if msg["sender"] != aliceID || msg["channel_name"] != "general" || msg["content"] != "hi" {
		t.Errorf("Unexpected published message: %v", msg)
	}
	if sentAt, _ := msg["sent_at"].(string); sentAt == "" {
		t.Error("Published message carries no sent_at timestamp")
	}

	// The sender must not receive its own message.
	testhelpers.ExpectNoFrame(t, aliceConn, 200*time.Millisecond)
}

// TestUnsubscribeFromNeverJoinedChannel verifies the error response and that
// registry state is unchanged.
func TestUnsubscribeFromNeverJoinedChannel(t *testing.T) {
	stack := testhelpers.NewStack(t)

	conn, _ := stack.Dial(t, "alice")

	testhelpers.SendCommand(t, conn, "unsubscribe", map[string]any{"channel_name": "never-joined"})
	rsp := testhelpers.ReadResponse(t, conn)
	if rsp["status"] != "error" {
		t.Fatalf("Expected error response, got %v", rsp)
	}
	info, _ := rsp["info"].(map[string]any)
	if detail, _ := info["detail"].(string); !strings.Contains(detail, "not subscribed") {
		t.Errorf("Unexpected error detail: %v", info["detail"])
	}

	if stack.Dispatcher.ChannelCount() != 0 {
		t.Errorf("Expected no channels after failed unsubscribe, got %d", stack.Dispatcher.ChannelCount())
	}
}

// TestDisconnectCleansUpMemberships verifies that a client disconnecting
// mid-session is removed from every channel it was subscribed to, and that
// channels where it was the sole subscriber disappear from the index.
func TestDisconnectCleansUpMemberships(t *testing.T) {
	stack := testhelpers.NewStack(t)

	aliceConn, _ := stack.Dial(t, "alice")
	bobConn, _ := stack.Dial(t, "bob")

	for _, channel := range []string{"solo", "shared"} {
		testhelpers.SendCommand(t, aliceConn, "subscribe", map[string]any{"channel_name": channel})
		if rsp := testhelpers.ReadResponse(t, aliceConn); rsp["status"] != "ok" {
			t.Fatalf("Subscribe failed: %v", rsp)
		}
	}
	testhelpers.SendCommand(t, bobConn, "subscribe", map[string]any{"channel_name": "shared"})
	if rsp := testhelpers.ReadResponse(t, bobConn); rsp["status"] != "ok" {
		t.Fatalf("Subscribe failed: %v", rsp)
	}

	if stack.Dispatcher.ClientCount() != 2 || stack.Dispatcher.ChannelCount() != 2 {
		t.Fatalf("Unexpected pre-disconnect state: %d clients, %d channels",
			stack.Dispatcher.ClientCount(), stack.Dispatcher.ChannelCount())
	}

	if err := aliceConn.Close(); err != nil {
		t.Fatalf("Failed to close connection: %v", err)
	}

	testhelpers.WaitFor(t, 2*time.Second, func() bool {
		return stack.Dispatcher.ClientCount() == 1 &&
			stack.Dispatcher.ChannelCount() == 1 &&
			stack.Dispatcher.Subscribers("shared") == 1 &&
			stack.Dispatcher.Subscribers("solo") == 0
	}, "Disconnect did not clean up channel memberships")
}

// TestDuplicateClientNameRefused verifies that a second connection under an
// already-registered name receives an error frame and is not registered.
func TestDuplicateClientNameRefused(t *testing.T) {
	stack := testhelpers.NewStack(t)

	stack.Dial(t, "bob")

	dupConn := stack.DialRaw(t, "bob")
	rsp := testhelpers.ReadResponse(t, dupConn)
	if rsp["status"] != "error" {
		t.Fatalf("Expected error response for duplicate name, got %v", rsp)
	}

	if stack.Dispatcher.ClientCount() != 1 {
		t.Errorf("Expected 1 registered client, got %d", stack.Dispatcher.ClientCount())
	}
}

// TestGeneratedClientName verifies that connecting without a client_name gets
// a generated identity in the handshake response.
func TestGeneratedClientName(t *testing.T) {
	stack := testhelpers.NewStack(t)

	_, id := stack.Dial(t, "")
	if len(id) != 32 {
		t.Errorf("Expected 32-character generated id, got %q", id)
	}
}

// TestInvalidCommandKeepsConnectionOpen verifies that a malformed frame
// produces an error response and the session continues to serve commands.
func TestInvalidCommandKeepsConnectionOpen(t *testing.T) {
	stack := testhelpers.NewStack(t)

	conn, _ := stack.Dial(t, "alice")

	testhelpers.SendCommand(t, conn, "shout", map[string]any{"channel_name": "general"})
	rsp := testhelpers.ReadResponse(t, conn)
	if rsp["status"] != "error" {
		t.Fatalf("Expected error response for unknown action, got %v", rsp)
	}

	testhelpers.SendCommand(t, conn, "subscribe", map[string]any{"channel_name": "general"})
	rsp = testhelpers.ReadResponse(t, conn)
	if rsp["status"] != "ok" {
		t.Errorf("Expected session to keep serving after a bad frame, got %v", rsp)
	}
}

// TestListReturnsSortedChannels verifies the list command end to end.
func TestListReturnsSortedChannels(t *testing.T) {
	stack := testhelpers.NewStack(t)

	conn, _ := stack.Dial(t, "alice")

	for _, channel := range []string{"b", "a"} {
		testhelpers.SendCommand(t, conn, "subscribe", map[string]any{"channel_name": channel})
		if rsp := testhelpers.ReadResponse(t, conn); rsp["status"] != "ok" {
			t.Fatalf("Subscribe failed: %v", rsp)
		}
	}

	testhelpers.SendCommand(t, conn, "list", nil)
	rsp := testhelpers.ReadResponse(t, conn)
	if rsp["status"] != "ok" {
		t.Fatalf("List failed: %v", rsp)
	}

	info, _ := rsp["info"].(map[string]any)
	channels, _ := info["channels"].([]any)
	if len(channels) != 2 || channels[0] != "a" || channels[1] != "b" {
		t.Errorf(`Expected ["a","b"], got %v`, channels)
	}
}

// TestHealthEndpoint verifies the plain-text health check.
func TestHealthEndpoint(t *testing.T) {
	stack := testhelpers.NewStack(t)

	rsp, err := http.Get(stack.Server.URL + "/healthz")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer func() { _ = rsp.Body.Close() }()

	if rsp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rsp.StatusCode)
	}
	body, _ := io.ReadAll(rsp.Body)
	if !strings.Contains(string(body), "running") {
		t.Errorf("Unexpected health body: %s", body)
	}
}

// TestMetricsEndpoint verifies that the Prometheus endpoint is mounted.
func TestMetricsEndpoint(t *testing.T) {
	stack := testhelpers.NewStack(t)

	rsp, err := http.Get(stack.Server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	defer func() { _ = rsp.Body.Close() }()

	if rsp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rsp.StatusCode)
	}
}
