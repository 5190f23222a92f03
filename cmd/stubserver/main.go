// Command stubserver runs the in-memory stand-in for the Groundplan
// reasoning service, for developing the client without a backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/stub"
)

func main() {
	addr := flag.String("addr", ":8000", "Listen address")
	rateLimit := flag.Int("rate-limit", 0, "Requests per second per client IP, 0 disables")
	flag.Parse()

	log, err := logging.New(logging.DevelopmentConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	srv := stub.NewServer(stub.Config{
		Addr:      *addr,
		RateLimit: *rateLimit,
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("shutdown incomplete", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	}
}
