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

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryujihub/MMHHINVmobile/internal/analytics"
	"github.com/ryujihub/MMHHINVmobile/internal/app"
	"github.com/ryujihub/MMHHINVmobile/internal/auth"
	"github.com/ryujihub/MMHHINVmobile/internal/borrowing"
	"github.com/ryujihub/MMHHINVmobile/internal/config"
	"github.com/ryujihub/MMHHINVmobile/internal/httpx"
	"github.com/ryujihub/MMHHINVmobile/internal/ledger"
	"github.com/ryujihub/MMHHINVmobile/internal/logging"
	"github.com/ryujihub/MMHHINVmobile/internal/movements"
	"github.com/ryujihub/MMHHINVmobile/internal/reconciler"
	"github.com/ryujihub/MMHHINVmobile/internal/redisx"
	"github.com/ryujihub/MMHHINVmobile/internal/settings"
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
	log = log.With(zap.String("service", cfg.ServiceName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	l := ledger.New(deps.Store, log)
	rec := movements.NewRecorder(deps.Store, l, log)
	mh := &httpx.MovementsHandler{Recorder: rec, Log: log}
	if deps.Redis != nil {
		mh.Idem = redisx.NewIdempotency(deps.Redis)
	}

	router := httpx.NewRouter(log)
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	httpx.Mount(router, verifier.Middleware, cfg.HTTP.RequestTimeout,
		&httpx.ItemsHandler{Ledger: l, Movements: rec, Log: log},
		mh,
		&httpx.BorrowsHandler{Manager: borrowing.NewManager(deps.Store, l, log), Log: log},
		&httpx.DashboardHandler{Analytics: analytics.NewService(l, deps.Store, log), Log: log},
		&httpx.SettingsHandler{Settings: settings.NewService(deps.Store, log), Log: log},
	)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	// a memory store is private to this process, so movements recorded
	// here are reconciled here
	if cfg.Store.Driver == config.DriverMemory {
		r := reconciler.New(deps.Store, l, deps.Marker("reconciler"), reconciler.Config{
			UserID: cfg.Reconciler.UserID,
			Buffer: cfg.Reconciler.Buffer,
			Window: cfg.Reconciler.Window,
		}, log)
		g.Go(func() error { return r.Run(ctx) })
	}
	return g.Wait()
}
