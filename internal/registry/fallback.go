package registry

import (
	"context"

	"github.com/rickgao/stockcache/internal/model"
)

// SourceStatic names the built-in list.
const SourceStatic = "static"

// fallbackSymbols is the NIFTY 50 constituent list.
var fallbackSymbols = []string{
	"ADANIENT", "ADANIPORTS", "APOLLOHOSP", "ASIANPAINT", "AXISBANK",
	"BAJAJ-AUTO", "BAJFINANCE", "BAJAJFINSV", "BEL", "BHARTIARTL",
	"BPCL", "BRITANNIA", "CIPLA", "COALINDIA", "DRREDDY",
	"EICHERMOT", "GRASIM", "HCLTECH", "HDFCBANK", "HDFCLIFE",
	"HEROMOTOCO", "HINDALCO", "HINDUNILVR", "ICICIBANK", "INDUSINDBK",
	"INFY", "ITC", "JSWSTEEL", "KOTAKBANK", "LT",
	"M&M", "MARUTI", "NESTLEIND", "NTPC", "ONGC",
	"POWERGRID", "RELIANCE", "SBILIFE", "SBIN", "SHRIRAMFIN",
	"SUNPHARMA", "TATACONSUM", "TATAMOTORS", "TATASTEEL", "TCS",
	"TECHM", "TITAN", "TRENT", "ULTRACEMCO", "WIPRO",
}

// DefaultFallback returns a fresh copy of the static list. Display names are
// the symbols themselves.
func DefaultFallback() []model.Instrument {
	out := make([]model.Instrument, len(fallbackSymbols))
	for i, s := range fallbackSymbols {
		out[i] = model.Instrument{Symbol: s, DisplayName: s}
	}
	return out
}

// StaticSource serves a fixed list.
type StaticSource struct {
	instruments []model.Instrument
}

// NewStaticSource returns a source over instruments, or the fallback list
// when instruments is empty.
func NewStaticSource(instruments []model.Instrument) *StaticSource {
	if len(instruments) == 0 {
		instruments = DefaultFallback()
	}
	return &StaticSource{instruments: instruments}
}

// Name implements Source.
func (s *StaticSource) Name() string { return SourceStatic }

// Load implements Source.
func (s *StaticSource) Load(_ context.Context) ([]model.Instrument, error) {
	out := make([]model.Instrument, len(s.instruments))
	copy(out, s.instruments)
	return out, nil
}
