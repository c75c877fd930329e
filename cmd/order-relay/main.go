package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ParcelBox/config"
	"github.com/pkg/errors"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	rt, err := newRelay(cfg, defaultRelayFactories())
	if err != nil {
		panic(err)
	}
	defer rt.cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := runRelayHTTPServer(ctx, relayHTTPOpts{
			httpAddr:    cfg.ParcelBox.RelayHTTPAddr,
			swaggerPath: os.Getenv("relaySwaggerPath"),
			relay:       rt.relay,
			pending:     rt.pending,
			cfg:         cfg,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("relay http server stopped", "error", err.Error())
		}
	}()

	if err := rt.relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
