package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryujihub/MMHHINVmobile/internal/app"
	"github.com/ryujihub/MMHHINVmobile/internal/config"
	"github.com/ryujihub/MMHHINVmobile/internal/ledger"
	"github.com/ryujihub/MMHHINVmobile/internal/logging"
	"github.com/ryujihub/MMHHINVmobile/internal/reconciler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.ServiceName+"-reconciler"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("reconciler exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Store.Driver == config.DriverMemory {
		log.Warn("memory store selected: this process only sees its own writes")
	}
	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	r := reconciler.New(deps.Store, ledger.New(deps.Store, log),
		deps.Marker("reconciler"),
		reconciler.Config{UserID: cfg.Reconciler.UserID, Buffer: cfg.Reconciler.Buffer, Window: cfg.Reconciler.Window},
		log,
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(ctx) })
	return g.Wait()
}
