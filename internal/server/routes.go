// Package server wires HTTP handlers into a ServeMux for the Parlor
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application
// routes: health check, login, room page, and the WebSocket endpoint.
func (a *App) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.HandleHealth)
	mux.HandleFunc("/login", a.HandleLogin)
	mux.HandleFunc("/room/", a.HandleRoomPage)
	mux.HandleFunc("/ws", a.HandleWebSocket)
	return mux
}
