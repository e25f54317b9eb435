package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/api"
	"github.com/sells-group/hexplorer/internal/render"
	"github.com/sells-group/hexplorer/internal/session"
	"github.com/sells-group/hexplorer/internal/store"
	"github.com/sells-group/hexplorer/internal/tiles"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the explorer API and renderer bridge",
	Long:  "Serves metric metadata, paint rules, cell GeoJSON, viewer sessions over WebSocket, map overlays at /api/overlays and, with a Postgres store, MVT tiles at /tiles/{layer}/{z}/{x}/{y}.pbf.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate("serve"); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	opts, err := renderOptions()
	if err != nil {
		return err
	}

	data, ds, closeData, err := loadDataset(ctx, reg)
	if err != nil {
		return err
	}
	defer closeData()
	if ds.IsFallback() {
		zap.L().Warn("serving sample data", zap.Error(ds.LoadErr()))
	}
	go data.Run(ctx, cfg.Dataset.RefreshInterval)

	sessions := session.NewManager(reg, cfg.Session.TTL)
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	hub := render.NewHub(reg, data, sessions, opts)
	hub.SetCheckOrigin(render.AllowOrigins(cfg.Server.CORSOrigins))
	defer hub.Close()

	cache := tiles.NewCache(cfg.Tiles.CacheSize, cfg.Tiles.CacheTTL)

	var tileHandler *tiles.Handler
	if cfg.Tiles.Enabled {
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
		if err != nil {
			return err
		}
		defer pg.Close() //nolint:errcheck
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		layers := tiles.DefaultLayers(reg.Keys())
		for name, l := range layers {
			l.MinZoom, l.MaxZoom = cfg.Tiles.MinZoom, cfg.Tiles.MaxZoom
			layers[name] = l
		}
		tileHandler = tiles.NewHandler(pg.Pool(), layers, cache)
	}

	overlays, proxy, err := newOverlays(cache)
	if err != nil {
		return err
	}
	if overlays != nil {
		hub.SetOverlays(overlays)
	}

	handler := api.New(api.Deps{
		Registry:      reg,
		Data:          data,
		Sessions:      sessions,
		Hub:           hub,
		Cache:         cache,
		Tiles:         tileHandler,
		Overlays:      overlays,
		Proxy:         proxy,
		Render:        opts,
		DefaultMetric: defaultMetric(reg),
	}, api.Options{
		CORSOrigins:     cfg.Server.CORSOrigins,
		ReloadPerMinute: cfg.Server.ReloadPerMinute,
	})
	defer handler.Close()

	port := servePort
	if port == 0 {
		port = cfg.Server.Port
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked WebSocket connections outlive Shutdown; their request
		// contexts end with ctx instead.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSecs)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server",
		zap.Int("port", port),
		zap.String("dataset", ds.Source()),
		zap.Int("cells", ds.Len()),
		zap.Bool("tiles", tileHandler != nil),
		zap.Bool("overlays", overlays != nil),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}

	return nil
}
