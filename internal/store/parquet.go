package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"quantfolio/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data. Indicator columns are
// optional; a null means the value was not computable for that bar.
type BarRecord struct {
	Symbol          string   `parquet:"symbol"`
	Timestamp       int64    `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open            float64  `parquet:"open"`
	High            float64  `parquet:"high"`
	Low             float64  `parquet:"low"`
	Close           float64  `parquet:"close"`
	Volume          int64    `parquet:"volume"`
	TradeCount      int64    `parquet:"trade_count"`
	VWAP            float64  `parquet:"vwap"`
	RSI             *float64 `parquet:"rsi,optional"`
	MAShort         *float64 `parquet:"ma_short,optional"`
	MALong          *float64 `parquet:"ma_long,optional"`
	ATR             *float64 `parquet:"atr,optional"`
	VolumeRatio     *float64 `parquet:"volume_ratio,optional"`
	VolatilityRatio *float64 `parquet:"volatility_ratio,optional"`
	Sentiment       *float64 `parquet:"sentiment,optional"`
}

// indicatorColumns maps indicator names to their record fields.
func (r *BarRecord) indicatorColumns() map[string]**float64 {
	return map[string]**float64{
		domain.IndRSI:             &r.RSI,
		domain.IndMAShort:         &r.MAShort,
		domain.IndMALong:          &r.MALong,
		domain.IndATR:             &r.ATR,
		domain.IndVolumeRatio:     &r.VolumeRatio,
		domain.IndVolatilityRatio: &r.VolatilityRatio,
		domain.IndSentiment:       &r.Sentiment,
	}
}

func toRecord(b domain.Bar) BarRecord {
	r := BarRecord{
		Symbol:     b.Symbol,
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
	for name, col := range r.indicatorColumns() {
		if v, ok := b.Indicators[name]; ok {
			*col = &v
		}
	}
	return r
}

func (r BarRecord) toBar() domain.Bar {
	b := domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
		Indicators: domain.Indicators{},
	}
	for name, col := range r.indicatorColumns() {
		if *col != nil {
			b.Indicators[name] = **col
		}
	}
	return b
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//
// Bars already on disk with the same timestamp are replaced.
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], toRecord(b))
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range. A zero start or end leaves that side of the range open.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	years, err := s.years(symbol, market)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, year := range years {
		if (!start.IsZero() && year < start.Year()) || (!end.IsZero() && year > end.Year()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, year))
		if err != nil {
			return nil, fmt.Errorf("reading %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			b := r.toBar()
			if (!start.IsZero() && b.Timestamp.Before(start)) || (!end.IsZero() && b.Timestamp.After(end)) {
				continue
			}
			bars = append(bars, b)
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// years lists the year files present for symbol in ascending order.
func (s *ParquetStore) years(symbol, market string) ([]int, error) {
	dir := filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".parquet")
		if e.IsDir() || name == e.Name() {
			continue
		}
		if y, err := strconv.Atoi(name); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
