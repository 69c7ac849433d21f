package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/parlorchat/parlor/internal/server"
)

func main() {
	log.Println("Starting Parlor chat server...")

	config := server.NewConfigFromEnv()
	app := server.NewApp(config)
	app.Start()

	httpServer := server.CreateServer(config.Port, app.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutdown signal received")
		if err := server.ShutdownServer(httpServer, 10*time.Second); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
		if err := app.Shutdown(5 * time.Second); err != nil {
			log.Printf("Hub shutdown error: %v", err)
		}
	}
}
