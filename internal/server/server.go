// Package server constructs and starts the Parlor HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/parlorchat/parlor/internal/auth"
	"github.com/parlorchat/parlor/internal/storage"
)

// App wires the coordinator's components together: credential issuer,
// connection registry, room membership table, broadcast hub, and blob
// store. It is constructed at process start and passed by reference to
// every handler; there is no hidden coordinator state.
type App struct {
	issuer   *auth.Issuer
	registry *Registry
	rooms    *RoomTable
	hub      *Hub
	store    storage.BlobStore
}

// NewApp applies the configuration and builds the application.
func NewApp(cfg *Config) *App {
	SetConfig(cfg)
	current := currentConfig()

	issuer := auth.NewIssuer(auth.Config{
		Secret:   current.Auth.Secret,
		TokenTTL: current.Auth.TokenTTL,
	})
	rooms := NewRoomTable()
	store := storage.NewRetrying(
		storage.NewUploadcare(storage.UploadcareConfig{
			Endpoint:  current.Upload.Endpoint,
			PublicKey: current.Upload.PublicKey,
		}),
		storage.RetryPolicy{
			MaxAttempts: current.Upload.MaxAttempts,
			Interval:    current.Upload.RetryInterval,
		},
	)

	return &App{
		issuer:   issuer,
		registry: NewRegistry(issuer),
		rooms:    rooms,
		hub:      NewHub(rooms),
		store:    store,
	}
}

// UseBlobStore replaces the blob store, keeping the configured retry
// policy's caller responsible for wrapping if retries are wanted.
func (a *App) UseBlobStore(store storage.BlobStore) {
	a.store = store
}

// Start launches the hub's event loop. It must be called before serving
// WebSocket connections.
func (a *App) Start() {
	go a.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// Hub returns the broadcast hub for shutdown coordination.
func (a *App) Hub() *Hub {
	return a.hub
}

// Rooms returns the room membership table.
func (a *App) Rooms() *RoomTable {
	return a.rooms
}

// Registry returns the connection registry.
func (a *App) Registry() *Registry {
	return a.registry
}

// Issuer returns the credential issuer backing the login endpoint.
func (a *App) Issuer() *auth.Issuer {
	return a.issuer
}

// Shutdown drains the hub, closing all client connections.
func (a *App) Shutdown(timeout time.Duration) error {
	return a.hub.Shutdown(timeout)
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	fmt.Printf("Server listening on port %s\n", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
