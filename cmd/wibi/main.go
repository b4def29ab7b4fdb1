// main.go - tracking agent binary
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wibi/internal"
	"wibi/internal/widget"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	pageURL := flag.String("page", "", "URL of the page to track")
	referrer := flag.String("referrer", "", "referrer of the page load")
	flag.Parse()

	if *pageURL == "" {
		log.Fatal("missing required -page flag")
	}

	engine, err := internal.NewEngine(internal.Options{
		Signals: newHostSignals(),
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	log.Println("Starting engine...")
	page := widget.PageContext{URL: *pageURL, Referrer: *referrer}
	if err := engine.Start(context.Background(), page); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	log.Println("Engine started successfully")

	waitForShutdownSignal(engine)
}

// waitForShutdownSignal sets up signal handling and performs graceful shutdown
func waitForShutdownSignal(engine *internal.Engine) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	log.Println("Initiating graceful shutdown...")
	if err := engine.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("Engine shutdown complete")
}
