package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/TrackHub/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	f := defaultWorkerFactories()

	s, closeFn, err := buildSyncer(cfg, f)
	if err != nil {
		panic(err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.TrackHub.WorkerHTTPAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			syncer:      s,
			cfg:         cfg,
		})
		if err != nil && err != context.Canceled {
			slog.Error("worker admin http", "error", err.Error())
		}
	}()

	if err := s.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}
