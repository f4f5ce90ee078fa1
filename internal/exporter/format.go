package exporter

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// formatFloat formats a float64 value for CSV output with exactly 2 decimal places
func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return fmt.Sprintf("%d", i)
}

// formatOptional formats v with two decimals or returns "" when absent
func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// formatIDRShort renders large amounts with an SI suffix: "Rp 1.2 B"
func formatIDRShort(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	value, prefix := humanize.ComputeSI(v)
	if prefix == "G" {
		prefix = "B" // billions, as the market reports them
	}
	if prefix == "" {
		return fmt.Sprintf("%sRp %s", sign, humanize.Commaf(math.Round(value)))
	}
	return fmt.Sprintf("%sRp %s %s", sign, humanize.FtoaWithDigits(value, 1), prefix)
}
