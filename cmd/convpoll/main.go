// Command convpoll polls devices described by a protocol definition file and
// publishes their register values over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"

	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/protodef"
)

func main() {
	cfg, err := loadConfig(viper.New())
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}

	l, err := cfg.newLogger()
	if err != nil {
		slog.Error("logger", "error", err)
		os.Exit(1)
	}
	logger.SetLogger(l)
	l.Info("convpoll starting", "version", versioninfo.Short())
	safePrintConfig(*cfg, l)

	if err := run(cfg, l); err != nil {
		l.Error("convpoll failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *Config, l logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defs, err := protodef.Load(cfg.Definitions)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, defs, l, openLink)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.start(ctx, 10*time.Second); err != nil {
		return err
	}

	srv := newServer(cfg, a.poller)
	done := make(chan struct{})
	go gracefulShutdown(ctx, srv, l, done)

	l.Info("http server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	l.Info("graceful shutdown complete")

	return nil
}

func gracefulShutdown(ctx context.Context, srv *http.Server, l logger.Logger, done chan<- struct{}) {
	defer close(done)

	<-ctx.Done()
	l.Info("shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("server forced to shutdown", "error", err)
	}
}
