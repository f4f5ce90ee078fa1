package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "chanalysis/internal/errors"
	"chanalysis/internal/flow"
	"chanalysis/internal/infrastructure"
	"chanalysis/internal/source"
)

// Report is the outcome of one analysis run
type Report struct {
	ID          string             `json:"id"`
	TraceID     string             `json:"trace_id,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
	Period      int                `json:"period"`
	TopN        int                `json:"top_n"`
	Symbols     []string           `json:"symbols"`
	Entries     []flow.ReportEntry `json:"entries"`
	Stats       flow.RunStats      `json:"stats"`
	Text        string             `json:"text"`
	Exports     []string           `json:"exports,omitempty"`
}

// ReportSummary is the websocket payload announcing a new report
type ReportSummary struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Period      int       `json:"period"`
	Entries     int       `json:"entries"`
	Top         []string  `json:"top"`
}

// Summary returns the broadcast form of the report
func (r *Report) Summary() ReportSummary {
	top := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		top = append(top, e.Symbol)
	}
	return ReportSummary{
		ID:          r.ID,
		GeneratedAt: r.GeneratedAt,
		Period:      r.Period,
		Entries:     len(r.Entries),
		Top:         top,
	}
}

// RunOptions overrides the configured run for one request. Nil fields keep the configured value.
type RunOptions struct {
	TopN    *int
	Period  *int
	Symbols []string
}

// ReportConfig is the static configuration of the report service
type ReportConfig struct {
	Flow         flow.Config
	UniverseSize int
	Symbols      []string
	Concurrency  int
}

// Collector gathers a fresh in-memory data set, e.g. by scraping the foreign table
type Collector interface {
	Collect(ctx context.Context, days int) (*source.MemorySource, error)
}

// Exporter writes report entries to files and returns their paths
type Exporter interface {
	Export(ctx context.Context, entries []flow.ReportEntry, generatedAt time.Time) ([]string, error)
}

// Broadcaster pushes updates to connected dashboard clients
type Broadcaster interface {
	BroadcastUpdate(updateType, subtype, action string, data interface{})
}

// ReportDeps are the collaborators of the report service. Only Source is required.
type ReportDeps struct {
	Source      flow.Source
	Lister      source.SymbolLister
	Collector   Collector
	Exporter    Exporter
	Broadcaster Broadcaster
	Metrics     *infrastructure.PipelineMetrics
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

// ReportService runs the analysis pipeline and keeps the latest report
type ReportService struct {
	cfg  ReportConfig
	deps ReportDeps

	running sync.Mutex

	mu     sync.RWMutex
	latest *Report

	now    func() time.Time
	logger *slog.Logger
}

// NewReportService creates a report service
func NewReportService(cfg ReportConfig, deps ReportDeps) (*ReportService, error) {
	if deps.Source == nil {
		return nil, apierrors.NewConfigError("report service requires a data source", nil)
	}
	if err := cfg.Flow.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(infrastructure.ServiceName)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	return &ReportService{
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		logger: deps.Logger.With(slog.String("service", "report")),
	}, nil
}

// Latest returns the most recent report or ErrReportNotReady
func (s *ReportService) Latest() (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, apierrors.ErrReportNotReady
	}
	return s.latest, nil
}

// HasReport reports whether a run has completed
func (s *ReportService) HasReport() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest != nil
}

// Generate runs with the configured options and returns the rendered text
func (s *ReportService) Generate(ctx context.Context) (string, error) {
	report, err := s.Run(ctx, RunOptions{})
	if err != nil {
		return "", err
	}
	return report.Text, nil
}

// Run performs one analysis run. Only one run executes at a time.
func (s *ReportService) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	if !s.running.TryLock() {
		return nil, apierrors.ErrRunInProgress
	}
	defer s.running.Unlock()

	ctx = infrastructure.EnsureTraceID(ctx)
	cfg := s.flowConfig(opts)

	ctx, span := s.deps.Tracer.Start(ctx, "report.run",
		trace.WithAttributes(
			attribute.Int("period", cfg.Period),
			attribute.Int("top_n", cfg.TopN),
		))
	defer span.End()

	start := s.now()
	report, err := s.run(ctx, cfg, opts.Symbols)
	duration := s.now().Sub(start)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		s.deps.Metrics.RecordRun(ctx, 0, 0, nil, duration, err)
		s.logger.ErrorContext(ctx, "report run failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration))
		return nil, err
	}

	report.Stats.Duration = duration
	s.deps.Metrics.RecordRun(ctx, report.Stats.Scored, len(report.Entries), report.Stats.Excluded, duration, nil)
	span.SetAttributes(
		attribute.Int("symbols", report.Stats.Symbols),
		attribute.Int("entries", len(report.Entries)),
	)

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	if s.deps.Broadcaster != nil {
		s.deps.Broadcaster.BroadcastUpdate("report", "generated", "completed", report.Summary())
	}

	s.logger.InfoContext(ctx, "report run completed",
		slog.String("report_id", report.ID),
		slog.Int("symbols", report.Stats.Symbols),
		slog.Int("scored", report.Stats.Scored),
		slog.Int("entries", len(report.Entries)),
		slog.Duration("duration", duration))

	return report, nil
}

func (s *ReportService) run(ctx context.Context, cfg flow.Config, override []string) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apierrors.NewValidationError("invalid run options", err)
	}

	src := s.deps.Source
	var scraped *source.MemorySource
	if s.deps.Collector != nil && len(override) == 0 && len(s.cfg.Symbols) == 0 {
		collected, err := s.deps.Collector.Collect(ctx, cfg.Period)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.WarnContext(ctx, "foreign table scrape failed, using API sources",
				slog.String("error", err.Error()))
		case len(collected.Symbols()) > 0:
			scraped = collected
			src = &source.FallbackSource{
				Primary:   scraped,
				Secondary: s.deps.Source,
				Liquidity: s.deps.Source,
				Logger:    s.logger,
			}
		}
	}

	symbols := s.resolveSymbols(ctx, override, scraped)
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	mem, err := source.Prefetch(ctx, src, symbols, cfg.Period, s.cfg.Concurrency, s.logger)
	if err != nil {
		return nil, fmt.Errorf("prefetch: %w", err)
	}

	entries, stats, err := flow.NewAnalyzer(mem, s.logger).AnalyzeWithStats(ctx, symbols, cfg)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	generatedAt := s.now().UTC()
	text, err := flow.Render(entries, flow.RenderOptions{
		Period:      cfg.Period,
		GeneratedAt: generatedAt,
		Policy:      cfg.Policy,
	})
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	report := &Report{
		ID:          uuid.New().String(),
		TraceID:     infrastructure.GetTraceID(ctx),
		GeneratedAt: generatedAt,
		Period:      cfg.Period,
		TopN:        cfg.TopN,
		Symbols:     symbols,
		Entries:     entries,
		Stats:       stats,
		Text:        text,
	}

	if s.deps.Exporter != nil {
		paths, err := s.deps.Exporter.Export(ctx, entries, generatedAt)
		if err != nil {
			// the report is still served and delivered
			s.logger.WarnContext(ctx, "report export failed", slog.String("error", err.Error()))
		}
		report.Exports = paths
	}

	return report, nil
}

// resolveSymbols picks the run's universe: request override, configured
// list, scraped table, then the upstream top-foreign list.
func (s *ReportService) resolveSymbols(ctx context.Context, override []string, scraped *source.MemorySource) []string {
	switch {
	case len(override) > 0:
		return dedupe(override)
	case len(s.cfg.Symbols) > 0:
		return dedupe(s.cfg.Symbols)
	case scraped != nil:
		return scraped.Symbols()
	}
	return source.TopSymbols(ctx, s.deps.Lister, s.cfg.UniverseSize, s.logger)
}

func (s *ReportService) flowConfig(opts RunOptions) flow.Config {
	cfg := s.cfg.Flow
	if opts.TopN != nil {
		cfg.TopN = *opts.TopN
	}
	if opts.Period != nil {
		cfg.Period = *opts.Period
	}
	return cfg
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// IsBusy reports whether err means another run holds the service
func IsBusy(err error) bool {
	return errors.Is(err, apierrors.ErrRunInProgress)
}
