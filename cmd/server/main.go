package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/chatroom/internal/auth"
	"github.com/Tyrowin/chatroom/internal/config"
	"github.com/Tyrowin/chatroom/internal/events"
	"github.com/Tyrowin/chatroom/internal/filestore"
	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/Tyrowin/chatroom/internal/metrics"
	"github.com/Tyrowin/chatroom/internal/server"
	"github.com/Tyrowin/chatroom/internal/store"
)

const eventQueueSize = 1024

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("CHAT_CONFIG"), "path to a TOML or YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	logger.Info(ctx, "Starting chat server...")

	st, err := store.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	authn := auth.NewAuthenticator(st)

	var tokens *auth.TokenVerifier
	if cfg.Token.KeyPath != "" {
		tokens, err = auth.NewRSAVerifierFromFile(cfg.Token.KeyPath, authn)
		if err != nil {
			return err
		}
	} else {
		tokens = auth.NewHMACVerifier([]byte(cfg.Token.Secret), authn)
	}

	files, err := filestore.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	var pub events.Publisher = events.Nop{}
	if cfg.Events.URL != "" {
		rabbit, err := events.NewRabbit(ctx, events.ConnectionOptions{
			URL:           cfg.Events.URL,
			RetryAttempts: cfg.Events.RetryAttempts,
			Delay:         cfg.Events.RetryDelay,
			Logger:        logger,
		}, cfg.Events.Exchange)
		if err != nil {
			return fmt.Errorf("events init error: %w", err)
		}
		pub = rabbit
	}
	defer pub.Close()

	emitterCtx, stopEmitter := context.WithCancel(context.Background())
	emitter := events.NewEmitter(pub, logger, eventQueueSize)
	go emitter.Run(emitterCtx)

	srv := server.New(cfg, server.Deps{
		Tokens:      tokens,
		Credentials: authn,
		Users:       authn,
		Messages:    st,
		Files:       files,
		Events:      emitter,
		Metrics:     metrics.New(),
		Logger:      logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if err != nil {
			logger.Error(ctx, "server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	if shutdownErr := srv.Shutdown(cfg.ShutdownTimeout); shutdownErr != nil {
		logger.Error(ctx, "shutdown failed", "error", shutdownErr)
		err = errors.Join(err, shutdownErr)
	}

	stopEmitter()
	<-emitter.Done()

	logger.Info(context.Background(), "server stopped")
	return err
}
