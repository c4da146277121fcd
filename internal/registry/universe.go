package registry

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/stockcache/internal/model"
)

// Universe is one generation of the instrument list. It is immutable.
type Universe struct {
	Instruments []model.Instrument
	Generation  uuid.UUID
	Source      string
	Fallback    bool
	LoadedAt    time.Time

	names map[string]string
}

// newUniverse cleans rows into a universe: symbols are trimmed and
// upper-cased, rows without a symbol are dropped, duplicates keep the first
// occurrence, and empty display names default to the symbol.
func newUniverse(rows []model.Instrument, source string, fallback bool, now time.Time) *Universe {
	u := &Universe{
		Instruments: make([]model.Instrument, 0, len(rows)),
		Generation:  uuid.New(),
		Source:      source,
		Fallback:    fallback,
		LoadedAt:    now,
		names:       make(map[string]string, len(rows)),
	}

	for _, row := range rows {
		sym := strings.ToUpper(strings.TrimSpace(row.Symbol))
		if sym == "" {
			continue
		}
		if _, dup := u.names[sym]; dup {
			continue
		}
		name := strings.TrimSpace(row.DisplayName)
		if name == "" {
			name = sym
		}
		u.names[sym] = name
		u.Instruments = append(u.Instruments, model.Instrument{Symbol: sym, DisplayName: name})
	}
	return u
}

// Len returns the number of instruments.
func (u *Universe) Len() int {
	return len(u.Instruments)
}

// Symbols returns the symbols in [start, end), clamped to the universe.
func (u *Universe) Symbols(start, end int) []string {
	start = max(0, min(start, len(u.Instruments)))
	end = max(start, min(end, len(u.Instruments)))

	out := make([]string, 0, end-start)
	for _, inst := range u.Instruments[start:end] {
		out = append(out, inst.Symbol)
	}
	return out
}

// Names returns the symbol to display name mapping. Callers must not modify it.
func (u *Universe) Names() map[string]string {
	return u.names
}

// Lookup returns the display name for symbol.
func (u *Universe) Lookup(symbol string) (string, bool) {
	name, ok := u.names[strings.ToUpper(strings.TrimSpace(symbol))]
	return name, ok
}
