// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// handleWebSocket upgrades the request and hands the resulting transport to
// the coordinator, which starts the session's agent.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}

	t := NewWebSocketTransport(conn, r.RemoteAddr, s.cfg)
	if _, err := s.coord.Accept(r.Context(), t); err != nil {
		s.logger.Info("rejecting connection", zap.String("addr", r.RemoteAddr), zap.Error(err))
		_ = t.WriteClose(shutdownReason)
		_ = t.Close()
	}
}

func newUpgrader(policy *originPolicy) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// handleTestPage serves an HTML page that speaks the relay protocol from a
// browser: claim a name, list names, and send direct messages.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.logger.Warn("error writing HTML response", zap.Error(err))
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
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
        input[type="text"] {
            width: 200px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #999; }
        .row { margin: 8px 0; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div class="row">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
        <button id="usernamesButton" onclick="getUsernames()" disabled>Usernames</button>
    </div>
    <div class="row">
        <input type="text" id="nameInput" placeholder="Your username" disabled>
        <button id="nameButton" onclick="setUsername()" disabled>Set username</button>
    </div>
    <div class="row">
        <input type="text" id="recipientInput" placeholder="Recipient" disabled>
        <input type="text" id="messageInput" placeholder="Message" disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');
        const controls = ['usernamesButton', 'nameInput', 'nameButton', 'recipientInput', 'messageInput', 'sendButton']
            .map(id => document.getElementById(id));

        function addMessage(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            controls.forEach(el => el.disabled = !connected);
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function render(msg) {
            if (typeof msg === 'string') {
                return;
            }
            if (msg.TextFrom) {
                addMessage(msg.TextFrom[0] + ': ' + msg.TextFrom[1], 'green');
            } else if (msg.Usernames) {
                addMessage('Usernames: ' + msg.Usernames.join(', '), 'black');
            } else if (msg.Response) {
                if ('Ok' in msg.Response) {
                    addMessage(msg.Response.Ok, 'blue');
                } else {
                    addMessage('Error: ' + msg.Response.Err, 'red');
                }
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() {
                addMessage('Connected to chat relay');
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                try {
                    render(JSON.parse(event.data));
                } catch (e) {
                    addMessage('Unreadable message: ' + event.data, 'red');
                }
            };

            ws.onclose = function(event) {
                addMessage('Connection closed' + (event.reason ? ': ' + event.reason : ''));
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addMessage('Connection error', 'red');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function send(msg) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(msg));
            }
        }

        function setUsername() {
            const name = document.getElementById('nameInput').value.trim();
            if (name) {
                send({SetUsername: name});
            }
        }

        function getUsernames() {
            send('GetUsernames');
        }

        function sendMessage() {
            const to = document.getElementById('recipientInput').value.trim();
            const input = document.getElementById('messageInput');
            if (to && input.value) {
                send({TextTo: [to, input.value]});
                addMessage('You to ' + to + ': ' + input.value, 'blue');
                input.value = '';
            }
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
