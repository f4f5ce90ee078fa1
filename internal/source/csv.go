package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	apierrors "chanalysis/internal/errors"
	"chanalysis/internal/flow"
)

// required CSV columns, matched case-insensitively
var csvRequired = []string{"date", "symbol", "close", "foreignbuy", "foreignsell"}

// LoadCSVFile reads an offline dataset from path
func LoadCSVFile(path string) (*MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apierrors.NewConfigError("open csv file", err).WithContext("path", path)
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV reads rows of Date, Symbol, Close, Volume, ForeignBuy, ForeignSell,
// RetailBuy, RetailSell and LiquidityEstimate. Only Date, Symbol, Close and the
// foreign columns are required; empty retail cells mean retail data is absent.
// The last non-empty LiquidityEstimate seen for a symbol wins.
func LoadCSV(r io.Reader) (*MemorySource, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, apierrors.NewParsingError("read csv header", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.NewReplacer("_", "", " ", "").Replace(strings.TrimSpace(name)))
		cols[key] = i
	}
	for _, name := range csvRequired {
		if _, ok := cols[name]; !ok {
			return nil, apierrors.NewValidationError(fmt.Sprintf("csv is missing column %q", name), nil)
		}
	}

	mem := NewMemorySource()
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, apierrors.NewParsingError(fmt.Sprintf("read csv line %d", line), err)
		}

		cell := func(name string) string {
			if i, ok := cols[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		symbol := strings.ToUpper(cell("symbol"))
		if symbol == "" {
			continue
		}
		date, err := parseDate(cell("date"))
		if err != nil {
			return nil, apierrors.NewParsingError(fmt.Sprintf("csv line %d", line), err)
		}

		rec := flow.DailyRecord{Symbol: symbol, Date: date}
		numbers := []struct {
			name string
			dst  *float64
		}{
			{"close", &rec.Close},
			{"volume", &rec.Volume},
			{"foreignbuy", &rec.ForeignBuy},
			{"foreignsell", &rec.ForeignSell},
		}
		for _, n := range numbers {
			if *n.dst, err = parseOptional(cell(n.name)); err != nil {
				return nil, apierrors.NewParsingError(fmt.Sprintf("csv line %d column %s", line, n.name), err)
			}
		}

		retailBuy, retailSell := cell("retailbuy"), cell("retailsell")
		if retailBuy != "" && retailSell != "" {
			buy, errBuy := parseNumber(retailBuy)
			sell, errSell := parseNumber(retailSell)
			if err := errors.Join(errBuy, errSell); err != nil {
				return nil, apierrors.NewParsingError(fmt.Sprintf("csv line %d retail columns", line), err)
			}
			rec.RetailBuy, rec.RetailSell = &buy, &sell
		}
		mem.Append(rec)

		if raw := cell("liquidityestimate"); raw != "" {
			v, err := parseNumber(raw)
			if err != nil {
				return nil, apierrors.NewParsingError(fmt.Sprintf("csv line %d liquidity", line), err)
			}
			mem.SetLiquidity(symbol, v)
		}
	}
	return mem, nil
}

// parseOptional reads a number, treating an empty cell as zero
func parseOptional(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return parseNumber(s)
}

// parseNumber parses a finite float; NaN and Inf are rejected
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
