package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/supabase-community/gotrue-go"
	"github.com/xdoubleu/essentia/v2/pkg/communication/httptools"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"github.com/xdoubleu/essentia/v2/pkg/sentrytools"
	"shadowcal.xdoubleu.com/apps/shadowcal"
	"shadowcal.xdoubleu.com/cmd/shadowcal/internal/services"
	"shadowcal.xdoubleu.com/internal/auth"
	"shadowcal.xdoubleu.com/internal/config"
)

type Application struct {
	logger   *slog.Logger
	config   config.Config
	services *services.Services
	sync     *shadowcal.ShadowCal
}

func main() {
	cfg := config.New(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	logger := slog.New(sentrytools.NewLogHandler(cfg.Env,
		slog.NewTextHandler(os.Stdout, nil)))

	if err := cfg.Validate(); err != nil {
		logger.Error("refusing to start", logging.ErrAttr(err))
		os.Exit(1)
	}

	ctx := context.Background()
	clk := clockwork.NewRealClock()

	store, closeStore, err := shadowcal.OpenStore(ctx, logger, cfg.DBDsn, clk)
	if err != nil {
		panic(err)
	}
	defer closeStore()

	supabase := gotrue.New(
		cfg.SupabaseProjRef,
		cfg.SupabaseAPIKey,
	)

	app := NewApplication(logger, cfg, auth.NewGoTrueIdentity(supabase))

	sync, err := shadowcal.New(ctx, app.services.Auth, logger, cfg, store, clk)
	if err != nil {
		panic(err)
	}
	app.sync = sync

	if err = sync.Start(); err != nil {
		panic(err)
	}
	defer sync.Shutdown()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,  //nolint:mnd //no magic number
		WriteTimeout: 30 * time.Second, //nolint:mnd //manual reconciles can be slow
	}
	err = httptools.Serve(logger, srv, cfg.Env)
	if err != nil {
		logger.Error("failed to serve server", logging.ErrAttr(err))
	}
}

func NewApplication(
	logger *slog.Logger,
	cfg config.Config,
	identity auth.IdentityProvider,
) *Application {
	//nolint:exhaustruct //sync is attached once the store is open
	return &Application{
		logger:   logger,
		config:   cfg,
		services: services.New(cfg, identity),
	}
}
