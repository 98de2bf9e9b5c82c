package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"market-data/internal/model"
)

const (
	archiveExt     = "zip"
	dateToken      = "20060102"
	partitionTrail = "_trade." + archiveExt
)

// Key identifies one partition. Date is the local midnight of the partition
// day for per-day resolutions and zero otherwise.
type Key struct {
	AssetClass model.AssetClass
	Resolution model.Resolution
	Symbol     string
	Date       time.Time
}

func (k Key) String() string {
	if k.Date.IsZero() {
		return fmt.Sprintf("%s/%s/%s", k.AssetClass, k.Resolution, k.Symbol)
	}
	return fmt.Sprintf("%s/%s/%s/%s", k.AssetClass, k.Resolution, k.Symbol, k.Date.Format(dateToken))
}

// SymbolKey normalizes a symbol for use in paths: lowercase, no separators.
func SymbolKey(symbol string) string {
	r := strings.NewReplacer("/", "", "-", "", " ", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(symbol)))
}

// Layout maps keys to paths under Root:
//
//	<root>/<asset>[/<market>]/<resolution>/<symbol>.zip                    daily, hour
//	<root>/<asset>[/<market>]/<resolution>/<symbol>/<YYYYMMDD>_trade.zip   minute
type Layout struct {
	Root     string
	Markets  map[model.AssetClass]string
	TableExt string
}

// ResolutionDir is the directory holding every symbol at one resolution.
func (l Layout) ResolutionDir(ac model.AssetClass, res model.Resolution) string {
	parts := []string{l.Root, string(ac)}
	if m := l.Markets[ac]; m != "" {
		parts = append(parts, m)
	}
	return filepath.Join(append(parts, string(res))...)
}

// SymbolDir is the per-symbol directory of per-day partitions.
func (l Layout) SymbolDir(ac model.AssetClass, res model.Resolution, symbol string) string {
	return filepath.Join(l.ResolutionDir(ac, res), SymbolKey(symbol))
}

// PartitionPath is the archive path for k.
func (l Layout) PartitionPath(k Key) string {
	if k.Resolution.PerDay() {
		return filepath.Join(l.SymbolDir(k.AssetClass, k.Resolution, k.Symbol), k.Date.Format(dateToken)+partitionTrail)
	}
	return filepath.Join(l.ResolutionDir(k.AssetClass, k.Resolution), SymbolKey(k.Symbol)+"."+archiveExt)
}

// TableName is the entry name inside the archive for k.
func (l Layout) TableName(k Key) string {
	ext := l.TableExt
	if ext == "" {
		ext = "csv"
	}
	sym := SymbolKey(k.Symbol)
	if k.Resolution.PerDay() {
		return fmt.Sprintf("%s_%s_%s_trade.%s", k.Date.Format(dateToken), sym, k.Resolution, ext)
	}
	return fmt.Sprintf("%s_%s_trade.%s", sym, k.Resolution, ext)
}

// ParsePartitionDate extracts the date from a per-day partition file name
// (YYYYMMDD_trade.zip) as midnight in loc.
func ParsePartitionDate(name string, loc *time.Location) (time.Time, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, partitionTrail) {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(dateToken, strings.TrimSuffix(base, partitionTrail), loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
