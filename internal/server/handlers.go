// Package server exposes HTTP handlers: the login endpoint, the room page,
// WebSocket upgrades, and the health check.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// LoginRequest defines the JSON body of the /login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
}

// LoginResponse is returned on successful credential issuance.
type LoginResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// HandleLogin issues a credential for a display name. The name must be
// unique among currently active users; a conflict is reported with 409.
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Login only accepts POST requests.", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cred, err := a.issuer.Issue(req.Username)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNameTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, auth.ErrEmptyName), errors.Is(err, auth.ErrNameTooLong):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("Error issuing credential: %v", err)
			http.Error(w, "login failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(LoginResponse{
		Token:       cred.Token,
		UserID:      cred.UserID,
		DisplayName: cred.DisplayName,
	}); err != nil {
		log.Printf("Error writing login response: %v", err)
	}
	log.Printf("Issued credential for %s", cred.DisplayName)
}

// HandleRoomPage serves the chat page for a room. The room identifier is
// checked with the same rule the live join event applies.
func (a *App) HandleRoomPage(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/room/")
	if roomID == "" || strings.Contains(roomID, "/") {
		http.NotFound(w, r)
		return
	}
	if err := ValidateRoomID(roomID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, roomPageHTML); err != nil {
		log.Printf("Error writing room page: %v", err)
	}
}

// HandleWebSocket handles WebSocket upgrade requests. The credential token
// is presented as a query parameter; a connection that fails the handshake
// authentication is closed immediately and never registered.
func (a *App) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, a.hub, r.RemoteAddr)
	session := NewSession(a, client)

	if err := session.Authenticate(r.URL.Query().Get("token")); err != nil {
		log.Printf("Authentication failed for %s: %v", r.RemoteAddr, err)
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = conn.Close()
		return
	}

	// Register the client with the hub; the hub will launch the pump goroutines.
	client.hub.register <- client
}

// HandleHealth provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func (a *App) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Parlor server is running!")
}

// roomPageHTML is a minimal chat page for exercising the protocol by hand:
// log in, connect, join the room from the URL, send messages and files.
const roomPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Parlor</title>
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
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>Parlor</h1>
    <div>
        <input type="text" id="username" placeholder="Display name...">
        <button onclick="login()">Join</button>
    </div>
    <div id="messages"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <input type="file" id="fileInput" disabled>
    </div>

    <script>
        let ws = null;
        let room = decodeURIComponent(window.location.pathname.split('/').pop());
        const messagesDiv = document.getElementById('messages');

        function addLine(text) {
            const el = document.createElement('div');
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        async function login() {
            const username = document.getElementById('username').value.trim();
            if (!username) return;
            const resp = await fetch('/login', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({username})
            });
            if (!resp.ok) { addLine('login failed: ' + await resp.text()); return; }
            const {token} = await resp.json();
            connect(token);
        }

        function connect(token) {
            const scheme = window.location.protocol === 'https:' ? 'wss' : 'ws';
            ws = new WebSocket(scheme + '://' + window.location.host + '/ws?token=' + encodeURIComponent(token));
            ws.onopen = () => {
                ws.send(JSON.stringify({event: 'joinRoom', data: {roomId: room}}));
                document.getElementById('messageInput').disabled = false;
                document.getElementById('sendButton').disabled = false;
                document.getElementById('fileInput').disabled = false;
            };
            ws.onmessage = (e) => {
                for (const frame of e.data.split('\n')) {
                    const {event, data} = JSON.parse(frame);
                    if (event === 'chatMessage') addLine(data.displayName + ': ' + data.message);
                    else if (event === 'botMessage') addLine('[' + data.displayName + '] ' + data.message);
                    else if (event === 'userJoined') addLine(data.displayName + ' joined');
                    else if (event === 'userDisconnect') addLine(data.displayName + ' disconnected');
                    else if (event === 'fileUploaded') addLine(data.displayName + ' shared ' + data.file.fileName + ': ' + data.file.url);
                    else if (event === 'errorMessage' || event === 'uploadError') addLine('error: ' + data);
                }
            };
            ws.onclose = () => addLine('connection closed');
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const message = input.value.trim();
            if (!message || !ws) return;
            ws.send(JSON.stringify({event: 'chatMessage', data: {roomId: room, message}}));
            input.value = '';
        }

        document.getElementById('fileInput').addEventListener('change', (e) => {
            const file = e.target.files[0];
            if (!file || !ws) return;
            const reader = new FileReader();
            reader.onload = () => {
                const base64Data = reader.result.split(',')[1];
                ws.send(JSON.stringify({event: 'uploadFile', data: {
                    base64Data, fileName: file.name, contentType: file.type, roomId: room
                }}));
            };
            reader.readAsDataURL(file);
        });

        document.getElementById('messageInput').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
