package flow

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// RenderOptions carries the values a report header needs besides the entries
type RenderOptions struct {
	Period      int
	GeneratedAt time.Time
	Policy      Policy
}

const reportTemplate = `📊 *Foreign Accumulation Report ({{.Period}} Days)*
Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
{{if not .Entries}}
No liquid symbols met the liquidity filter for this period.
{{end}}{{range .Entries}}
*{{.Symbol}}* — Foreign {{direction .Metrics.NetForeign}} {{.Metrics.Streak}}/{{$.Period}} days ({{.Recommendation.Label}})
Avg foreign price: {{idr .Metrics.WeightedAvgPrice}}
Last price: {{idr .Metrics.LastPrice}} ({{pct .Metrics.PctChangeVsAvg}})
Net foreign ({{$.Period}}d): {{idr .Metrics.NetForeign}} | Retail: {{idrp .Metrics.RetailNet}}
{{with .LiquidityEstimate}}Liquidity avg: {{idr .}}{{else}}Liquidity: -{{end}}
Score: {{printf "%.1f" .Score}}/100 → {{.Recommendation.Label}} ({{.Recommendation.Advice}})
{{if .Divergence.Flag}}🔄 Divergence: Yes (corr={{corr .Divergence}}) — {{.Divergence.Narrative}}{{else}}🔹 Divergence: No (corr={{corr .Divergence}}){{end}}
{{with .Recommendation.BuyZone}}💡 BUY area: {{idr .}}
{{end}}{{with .Recommendation.SellZone}}💡 SELL / take-profit area: {{idr .}}
{{end}}{{with .Recommendation.CutLoss}}🛑 Cut loss: {{idr .}}
{{end}}{{if .Recommendation.Flexible}}⚠️ Uptrend and foreign still accumulating — flexible exit: use a trailing stop / sell on distribution.
{{end}}{{end}}
_Scoring_: {{legend .Policy}}
`

var reportFuncs = template.FuncMap{
	"idr":       formatIDR,
	"idrp":      formatIDRPtr,
	"pct":       func(v float64) string { return fmt.Sprintf("%+.1f%%", v) },
	"direction": direction,
	"corr":      formatCorrelation,
	"legend":    formatLegend,
}

var reportTmpl = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportTemplate))

// Render expands the report template over the given entries.
// It only formats values already present on the entries.
func Render(entries []ReportEntry, opts RenderOptions) (string, error) {
	var b strings.Builder
	data := struct {
		RenderOptions
		Entries []ReportEntry
	}{opts, entries}

	if err := reportTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return b.String(), nil
}

// formatIDR formats an amount as whole rupiah with thousands separators
func formatIDR(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return "Rp " + humanize.Comma(int64(math.Round(v)))
}

func formatIDRPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatIDR(*v)
}

func direction(net float64) string {
	switch {
	case net > 0:
		return "Buy"
	case net < 0:
		return "Sell"
	default:
		return "Neutral"
	}
}

func formatCorrelation(d Divergence) string {
	if !d.Computed() {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", d.Correlation)
}

func formatLegend(p Policy) string {
	w := p.Weights
	return fmt.Sprintf("score combines foreign streak (%.0f%%), relative net flow (%.0f%%), price stability (%.0f%%) and liquidity (%.0f%%). Divergence moves the score by ±%.0f.",
		w.Streak*100, w.Flow*100, w.Stability*100, w.Liquidity*100, p.DivergenceAdjustment)
}
