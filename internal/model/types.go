package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Page sources.
const (
	SourceLive        = "live"
	SourcePlaceholder = "placeholder"
	SourceStale       = "stale"
)

// Instrument is one tradable symbol from the catalog.
type Instrument struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
}

// Quote is the canonical, normalized quote shape.
type Quote struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`

	LastPrice decimal.NullDecimal `json:"last_price"`
	ChangeAbs decimal.NullDecimal `json:"change_abs"`
	ChangePct decimal.NullDecimal `json:"change_pct"`

	Open          decimal.NullDecimal `json:"open"`
	High          decimal.NullDecimal `json:"high"`
	Low           decimal.NullDecimal `json:"low"`
	PreviousClose decimal.NullDecimal `json:"previous_close"`
	Volume        *int64              `json:"volume"`

	// Detail-only fields; absent on page quotes.
	MarketCap decimal.NullDecimal `json:"market_cap"`
	PERatio   decimal.NullDecimal `json:"pe_ratio"`
	Sector    string              `json:"sector,omitempty"`

	AsOf time.Time `json:"as_of"`
}

// Page is one paginated slice of the instrument universe.
//
// A page with Error set may still carry items (partial success).
type Page struct {
	Items      []Quote   `json:"items"`
	TotalCount int       `json:"total_count"`
	HasMore    bool      `json:"has_more"`
	Skip       int       `json:"skip"`
	Limit      int       `json:"limit"`
	Error      string    `json:"error,omitempty"`
	Partial    bool      `json:"partial,omitempty"`
	Source     string    `json:"source"`
	AsOf       time.Time `json:"as_of"`
}

// NewPage builds a live page and derives HasMore from the item count.
func NewPage(skip, limit, total int, items []Quote) Page {
	if items == nil {
		items = []Quote{}
	}
	return Page{
		Items:      items,
		TotalCount: total,
		HasMore:    HasMore(skip, len(items), total),
		Skip:       skip,
		Limit:      limit,
		Source:     SourceLive,
		AsOf:       time.Now().UTC(),
	}
}

// HasMore reports whether more instruments exist after a page of n items at skip.
func HasMore(skip, n, total int) bool {
	return skip+n < total
}

// OK reports whether the page carries no page-level error.
func (p Page) OK() bool {
	return p.Error == ""
}

// Index is a market index level.
type Index struct {
	Key       string              `json:"key"`
	Name      string              `json:"name"`
	Value     decimal.NullDecimal `json:"value"`
	Change    decimal.NullDecimal `json:"change"`
	ChangePct decimal.NullDecimal `json:"change_pct"`
	AsOf      time.Time           `json:"as_of"`
}

// SessionState is a snapshot of the upstream session gate.
type SessionState struct {
	LastRequestAt time.Time `json:"last_request_at"`
	EstablishedAt time.Time `json:"established_at"`
	Valid         bool      `json:"valid"`
	Handshakes    int64     `json:"handshakes"`
}
