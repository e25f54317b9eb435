package main

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/hexplorer/internal/colorscale"
	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/fetcher"
	"github.com/sells-group/hexplorer/internal/metric"
	"github.com/sells-group/hexplorer/internal/overlay"
	"github.com/sells-group/hexplorer/internal/render"
	"github.com/sells-group/hexplorer/internal/store"
	"github.com/sells-group/hexplorer/internal/tiles"
)

func loadRegistry() (*metric.Registry, error) {
	if cfg.Registry.Path == "" {
		return metric.Default(), nil
	}
	return metric.LoadFile(cfg.Registry.Path)
}

// defaultMetric is the configured default when the registry knows it,
// otherwise the registry's first metric.
func defaultMetric(reg *metric.Registry) string {
	if k := cfg.Registry.DefaultMetric; k != "" && reg.Has(k) {
		return k
	}
	return reg.First()
}

func storeConfig() store.Config {
	return store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		SQLitePath:  cfg.Store.SQLitePath,
		MaxConns:    cfg.Store.MaxConns,
	}
}

// newGateway builds the configured dataset source. The returned func
// releases anything the gateway opened.
func newGateway(ctx context.Context, reg *metric.Registry) (dataset.Gateway, func(), error) {
	noop := func() {}
	schema := reg.Schema()

	switch cfg.Dataset.Source {
	case "file":
		return dataset.FileGateway{Path: cfg.Dataset.Path, Sheet: cfg.Dataset.Sheet, Schema: schema}, noop, nil
	case "remote":
		h := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.Fetch.UserAgent,
			Timeout:     cfg.Fetch.Timeout,
			RatePerHost: rate.Limit(cfg.Fetch.RatePerHost),
		})
		f := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: cfg.Fetch.Timeout})
		gw, err := dataset.NewRemoteGateway(cfg.Dataset.URL, cfg.Dataset.Sheet, schema, h, f)
		if err != nil {
			return nil, nil, err
		}
		return gw, noop, nil
	case "store":
		st, err := store.Open(ctx, storeConfig())
		if err != nil {
			return nil, nil, err
		}
		return dataset.StoreGateway{Store: st, Name: cfg.Store.Driver}, func() { _ = st.Close() }, nil
	case "static":
		return dataset.StaticGateway{Name: "sample", Records: dataset.Fallback()}, noop, nil
	}
	return nil, nil, eris.Errorf("unknown dataset source %q", cfg.Dataset.Source)
}

// loadDataset loads the configured source once. A failed load yields the
// sample set, flagged as fallback.
func loadDataset(ctx context.Context, reg *metric.Registry) (*dataset.Manager, *dataset.Dataset, func(), error) {
	gw, closeGW, err := newGateway(ctx, reg)
	if err != nil {
		return nil, nil, nil, err
	}
	m := dataset.NewManager(gw, dataset.WithTransform(reg.Derive))
	ds, err := m.Reload(ctx)
	if err != nil {
		closeGW()
		return nil, nil, nil, err
	}
	return m, ds, closeGW, nil
}

func renderOptions() (render.Options, error) {
	opts := render.DefaultOptions()
	opts.FillOpacity = cfg.Render.FillOpacity
	if cfg.Render.OutlineColor != "" {
		c, err := colorscale.ParseColor(cfg.Render.OutlineColor)
		if err != nil {
			return opts, eris.Wrap(err, "render.outline_color")
		}
		opts.OutlineColor = c
	}
	if cfg.Render.FallbackColor != "" {
		c, err := colorscale.ParseColor(cfg.Render.FallbackColor)
		if err != nil {
			return opts, eris.Wrap(err, "render.fallback_color")
		}
		opts.FallbackColor = c
	}
	return opts, nil
}

// newOverlays builds the overlay service and its raster tile proxy. Both are
// nil when overlays are disabled.
func newOverlays(cache *tiles.Cache) (*overlay.Service, *tiles.Proxy, error) {
	if !cfg.Overlays.Enabled {
		return nil, nil, nil
	}
	list := make([]overlay.Overlay, 0, len(cfg.Overlays.Layers))
	for _, l := range cfg.Overlays.Layers {
		list = append(list, overlay.Overlay{
			Name:        l.Name,
			Title:       l.Title,
			Kind:        l.Kind,
			URL:         l.URL,
			Attribution: l.Attribution,
			ContentType: l.ContentType,
			Opacity:     l.Opacity,
			MinZoom:     l.MinZoom,
			MaxZoom:     l.MaxZoom,
			Color:       l.Color,
		})
	}
	h := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout,
		RatePerHost: rate.Limit(cfg.Overlays.RatePerHost),
	})
	svc, err := overlay.NewService(list, h, cache)
	if err != nil {
		return nil, nil, err
	}
	return svc, tiles.NewProxy(h, svc.ProxyLayers(), cache), nil
}
