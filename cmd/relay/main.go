// cmd/relay/main.go
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

	"github.com/jason-s-yu/dotr/internal/auth"
	"github.com/jason-s-yu/dotr/internal/cache"
	"github.com/jason-s-yu/dotr/internal/config"
	"github.com/jason-s-yu/dotr/internal/handlers"
	"github.com/jason-s-yu/dotr/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	issuer, err := newIssuer(cfg)
	if err != nil {
		logger.Fatalf("resume tokens: %v", err)
	}

	opts := room.Options{
		Variant:         room.ParseVariant(cfg.RelayMode),
		ReconnectWindow: cfg.ReconnectWindow,
		Tokens:          issuer,
		RequireToken:    cfg.RequireResumeToken,
	}

	var actions *cache.ActionLog
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(context.Background(), cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		actions = cache.NewActionLog(rdb, cfg.ReconnectWindow)
		opts.OnAction = handlers.RecordActions(actions, logger)
		opts.OnRoomDeleted = handlers.ForgetActions(actions, logger)
		logger.Infof("recording actions to redis at %s", cfg.RedisAddr)
	}

	reg := room.NewRegistry(logger, opts)
	relay := handlers.NewRelayServer(logger, reg, actions, cfg.WriteTimeout)

	server := &http.Server{
		Handler:     handlers.SetupRelayRoutes(relay, cfg.AllowedOrigins),
		ReadTimeout: 10 * time.Second,
	}

	l, err := net.Listen("tcp", cfg.RelayAddr())
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("%s relay listening on %s", opts.Variant, l.Addr())

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
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	relay.Shutdown()
}

// newIssuer loads the resume-token keys, or generates an ephemeral pair when no
// key paths are configured. Tokens stay valid for as long as their room exists.
func newIssuer(cfg config.Config) (*auth.Issuer, error) {
	if cfg.JWTPrivateKeyPath != "" && cfg.JWTPublicKeyPath != "" {
		return auth.NewIssuerFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath)
	}
	return auth.NewIssuer()
}
