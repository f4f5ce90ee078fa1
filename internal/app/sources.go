package app

import (
	"fmt"
	"log/slog"

	"chanalysis/internal/config"
	apierrors "chanalysis/internal/errors"
	"chanalysis/internal/flow"
	"chanalysis/internal/infrastructure"
	"chanalysis/internal/services"
	"chanalysis/internal/source"
	"chanalysis/internal/validation"
)

// dataSources is the upstream wiring of one application
type dataSources struct {
	source    flow.Source
	lister    source.SymbolLister
	collector services.Collector
	closers   []func()
	names     []string
}

func (d *dataSources) close() {
	for _, c := range d.closers {
		c()
	}
}

// buildSources assembles the configured upstreams. A CSV file serves offline
// runs on its own; otherwise RTI is primary and Stockbit fills short windows
// and provides liquidity.
func buildSources(cfg config.SourcesConfig, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (*dataSources, error) {
	opts := source.ClientOptions{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Recorder:  metrics,
		Logger:    logger,
	}
	ds := &dataSources{}

	if cfg.CSVFile != "" {
		if err := validation.NewFileValidator(logger).ValidateCSVFile(cfg.CSVFile); err != nil {
			return nil, apierrors.NewConfigError("invalid sources.csv_file", err)
		}
		mem, err := source.LoadCSVFile(cfg.CSVFile)
		if err != nil {
			return nil, apierrors.NewConfigError(fmt.Sprintf("load csv %s", cfg.CSVFile), err)
		}
		ds.source = mem
		ds.collector = mem
		ds.names = append(ds.names, "csv")
		return ds, nil
	}

	fallback := &source.FallbackSource{Logger: logger}

	if cfg.RTI.Enabled {
		rtiOpts := opts
		rtiOpts.RPS = cfg.RTI.RPS
		rti := source.NewRTIClient(source.RTIConfig{
			APIBase:  cfg.RTI.APIBase,
			LoginURL: cfg.RTI.LoginURL,
			Email:    cfg.RTI.Email,
			Password: cfg.RTI.Password,
		}, rtiOpts)
		fallback.Primary = rti
		ds.lister = rti
		ds.names = append(ds.names, "rti")

		if cfg.RTI.Scrape && cfg.RTI.ForeignURL != "" {
			var fetcher source.PageFetcher
			if cfg.RTI.RenderJS {
				browser := source.NewBrowserFetcher(cfg.UserAgent, cfg.Timeout, logger)
				ds.closers = append(ds.closers, browser.Close)
				fetcher = browser
			} else {
				fetcher = source.NewHTTPFetcher(cfg.RTI.LoginURL, cfg.RTI.Email, cfg.RTI.Password, rtiOpts)
			}
			ds.collector = source.NewRTIScraper(fetcher, cfg.RTI.ForeignURL, logger)
			ds.names = append(ds.names, "rti-scrape")
		}
	}

	if cfg.Stockbit.Enabled {
		sbOpts := opts
		sbOpts.RPS = cfg.Stockbit.RPS
		sb := source.NewStockbitClient(cfg.Stockbit.BaseURL, sbOpts)
		fallback.Secondary = sb
		fallback.Liquidity = sb
		ds.names = append(ds.names, "stockbit")
	}

	if fallback.Primary == nil && fallback.Secondary == nil {
		ds.close()
		return nil, apierrors.NewConfigError("no data source configured: enable rti or stockbit, or set sources.csv_file", nil)
	}

	ds.source = fallback
	return ds, nil
}
