// cmd/signaling/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/dotr/internal/config"
	"github.com/jason-s-yu/dotr/internal/handlers"
	"github.com/jason-s-yu/dotr/internal/signaling"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	sig := handlers.NewSignalingServer(logger, signaling.NewRegistry(logger), cfg.WriteTimeout)
	server := &http.Server{
		Handler:     handlers.SetupSignalingRoutes(sig, cfg.AllowedOrigins),
		ReadTimeout: 10 * time.Second,
	}

	l, err := net.Listen("tcp", cfg.SignalingAddr())
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("signaling listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("failed to serve: %v", err)
		}
	case s := <-sigs:
		logger.Infof("terminating: %v", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	sig.Shutdown()
}
