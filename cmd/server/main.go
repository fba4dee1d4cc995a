package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/app"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/config"
	"github.com/suPer8Hu/codemate/internal/db"
	"github.com/suPer8Hu/codemate/internal/httpapi"
	"github.com/suPer8Hu/codemate/internal/httpapi/handlers"
	"github.com/suPer8Hu/codemate/internal/logging"
	"github.com/suPer8Hu/codemate/internal/store/rabbitmq"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if cfg.MigrateOnBoot {
		if err := db.Migrate(gdb, cfg.DBDriver, cfg.DBDSN); err != nil {
			return err
		}
		log.Info("schema up to date", zap.String("driver", cfg.DBDriver))
	}

	provider, err := app.Provider(ctx, cfg)
	if err != nil {
		return err
	}
	topics, closeTopics, err := app.TopicStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeTopics() }()

	deps := handlers.Deps{
		ChatSvc: chat.NewService(chat.NewRepo(gdb), provider, topics, log.Named("chat")),
		Runner:  app.Runner(cfg),
		Log:     log,
	}

	// async chat is optional; without a broker /chat/async answers 503
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, async chat disabled", zap.Error(err))
		} else {
			defer func() { _ = pub.Close() }()
			deps.Jobs = pub
		}
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(gdb, cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("ai_provider", cfg.AIProvider),
			zap.Bool("async_chat", deps.Jobs != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
