// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in chat test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dstilesr/mini-chats/internal/dispatch"
	"github.com/dstilesr/mini-chats/internal/protocol"
)

// Handler bundles the dispatcher, task runner, and connection policy needed
// to serve chat connections. One Handler serves all routes.
type Handler struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	runner     *dispatch.TaskRunner
	upgrader   websocket.Upgrader
}

// NewHandler creates the HTTP handler set for the given dispatcher and runner.
func NewHandler(cfg Config, dispatcher *dispatch.Dispatcher, runner *dispatch.TaskRunner) *Handler {
	origins := newOriginChecker(cfg.AllowedOrigins)

	return &Handler{
		cfg:        cfg,
		dispatcher: dispatcher,
		runner:     runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Connect handles WebSocket upgrade requests on the chat endpoint. An
// optional client_name query parameter supplies the client's identity;
// otherwise one is generated. The assigned id is sent in the first response
// frame; a registration failure is reported in an error frame and the
// connection is closed.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	clientName := r.URL.Query().Get("client_name")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("error", err).Error("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageSize)

	client, err := h.dispatcher.AddClient(clientName)
	if err != nil {
		log.WithFields(log.Fields{"client": clientName, "error": err}).Error("Failed to register client")
		_ = conn.WriteJSON(protocol.Errorf("failed to register client %s: %v", clientName, err))
		_ = conn.Close()
		return
	}

	newSession(conn, client, h.dispatcher, h.runner, h.cfg, r.RemoteAddr).run()
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "mini-chats server is running!")
}

// ChatPage serves an HTML page for exercising the chat protocol from a
// browser: connect, subscribe, publish, and watch deliveries arrive.
func (h *Handler) ChatPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, chatPageHTML); err != nil {
		log.WithField("error", err).Error("Error writing HTML response")
	}
}

const chatPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Mini Chats</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Mini Chats</h1>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <input type="text" id="nameInput" placeholder="Client name (optional)">
        <button onclick="toggleConnection()" id="connectButton">Connect</button>
    </div>
    <div>
        <input type="text" id="channelInput" placeholder="Channel">
        <button onclick="send('subscribe')">Subscribe</button>
        <button onclick="send('unsubscribe')">Unsubscribe</button>
        <button onclick="list()">List</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Message">
        <button onclick="publish()">Publish</button>
    </div>
    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const statusDiv = document.getElementById('status');

        function addMessage(text) {
            const el = document.createElement('div');
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            document.getElementById('connectButton').textContent = connected ? 'Disconnect' : 'Connect';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const name = document.getElementById('nameInput').value.trim();
            const query = name ? '?client_name=' + encodeURIComponent(name) : '';
            ws = new WebSocket('ws://' + location.host + '/api/connect' + query);
            ws.onopen = () => updateStatus(true);
            ws.onmessage = (event) => addMessage(event.data);
            ws.onclose = () => { updateStatus(false); ws = null; };
        }

        function send(action) {
            const channel = document.getElementById('channelInput').value.trim();
            if (ws) ws.send(JSON.stringify({action: action, params: {channel_name: channel}}));
        }

        function publish() {
            const channel = document.getElementById('channelInput').value.trim();
            const content = document.getElementById('messageInput').value;
            if (ws) ws.send(JSON.stringify({action: 'publish', params: {channel_name: channel, content: content}}));
        }

        function list() {
            if (ws) ws.send(JSON.stringify({action: 'list'}));
        }
    </script>
</body>
</html>`
