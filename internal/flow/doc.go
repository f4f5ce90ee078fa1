// Package flow implements the foreign-flow accumulation scanner.
//
// For every symbol the pipeline reduces a window of daily trading facts into
// summary metrics, maps them to a bounded composite score, cross-checks
// foreign net flow against retail net flow for divergence and turns the result
// into a labeled trade-zone recommendation. Candidates are then filtered by
// liquidity, ranked by score and rendered as text.
//
// # Components
//
//   - aggregate.go: window reduction into Metrics (Aggregate)
//   - score.go: composite score in [0,100] and the divergence adjustment
//   - divergence.go: Pearson correlation of foreign vs retail daily net flow
//   - recommend.go: score bands, trade zones, cut-loss and trend tag
//   - rank.go: liquidity filter, stable ranking, top-N truncation
//   - render.go: text report template
//   - policy.go: the scoring policy (weights, band tables, multipliers)
//   - analyzer.go: orchestration over a Source
//
// # Scoring
//
// The default policy weighs four components:
//
//	score = 100 * (0.45*streak + 0.25*flow + 0.15*stability + 0.10*liquidity)
//
// A flagged divergence then moves the score by ±5 in the direction of the net
// foreign flow. Both the raw and the adjusted score are clamped to [0,100].
//
// # Usage Example
//
//	analyzer := flow.NewAnalyzer(source, slog.Default())
//	cfg := flow.DefaultConfig()
//	entries, err := analyzer.Analyze(ctx, []string{"BBCA", "TLKM"}, cfg)
//	if err != nil {
//	    return err
//	}
//	text, err := flow.Render(entries, flow.RenderOptions{
//	    Period:      cfg.Period,
//	    GeneratedAt: time.Now(),
//	    Policy:      cfg.Policy,
//	})
//
// All computations are pure with respect to the window they are given: the
// package never fetches data and keeps no state between calls.
package flow
