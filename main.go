package main

import (
	"avachat/app/api"
	"avachat/app/client/analytics"
	"avachat/app/client/leadstore"
	"avachat/app/client/ragbot"
	"avachat/app/config"
	"avachat/app/service/dialogue"
	"avachat/app/service/extract"
	"avachat/app/service/finalize"
	"avachat/app/service/session"
	"avachat/app/service/sweeper"
	"avachat/app/service/turn"
	"avachat/app/util/mylog"
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, ragbot.NewClient)
	do.Provide(di, analytics.NewClient)
	do.Provide(di, leadstore.NewStore)
	do.Provide(di, session.New)
	do.Provide(di, extract.New)
	do.Provide(di, dialogue.New)
	do.Provide(di, finalize.New)
	do.Provide(di, turn.New)
	do.Provide(di, sweeper.New)
	do.Provide(di, api.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*sweeper.Service](di).Run(appCtx)

	go func() {
		if err := do.MustInvoke[*api.Server](di).Run(appCtx); err != nil {
			slog.Error("HTTP server stopped", "error", err)
			cancel()
		}
	}()

	<-appCtx.Done()
}
