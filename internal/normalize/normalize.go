package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/stockcache/internal/api"
	"github.com/rickgao/stockcache/internal/model"
)

var (
	// ErrNoSymbol marks a record without a usable symbol.
	ErrNoSymbol = fmt.Errorf("%w: record has no symbol", api.ErrSchema)

	// ErrNoPrice marks a record without a usable last price.
	ErrNoPrice = fmt.Errorf("%w: record has no usable price", api.ErrSchema)

	// ErrNoInfo marks a detail document without an info section, which the
	// upstream returns for unknown symbols.
	ErrNoInfo = errors.New("detail document has no info section")
)

var hundred = decimal.NewFromInt(100)

// RawQuote is the tagged intermediate form of one upstream record. Every
// numeric field is either present or absent.
type RawQuote struct {
	Symbol        string
	Name          string
	LastPrice     decimal.NullDecimal
	Open          decimal.NullDecimal
	High          decimal.NullDecimal
	Low           decimal.NullDecimal
	PreviousClose decimal.NullDecimal
	Volume        *int64
	MarketCap     decimal.NullDecimal
	PERatio       decimal.NullDecimal
	Sector        string
}

// ParseQuote extracts a RawQuote from a quotes-endpoint record. It never
// fails; missing fields are absent.
func ParseQuote(rec map[string]any) RawQuote {
	return RawQuote{
		Symbol:        strings.ToUpper(parseString(lookup(rec, "symbol", "meta.symbol"))),
		Name:          parseString(lookup(rec, "companyName", "meta.companyName", "name")),
		LastPrice:     parseDecimal(lookup(rec, "lastPrice", "last", "ltp", "price")),
		Open:          parseDecimal(lookup(rec, "open")),
		High:          parseDecimal(lookup(rec, "dayHigh", "high")),
		Low:           parseDecimal(lookup(rec, "dayLow", "low")),
		PreviousClose: parseDecimal(lookup(rec, "previousClose", "prevClose")),
		Volume:        parseInt(lookup(rec, "totalTradedVolume", "volume")),
		MarketCap:     parseDecimal(lookup(rec, "marketCapitalization", "ffmc")),
		Sector:        parseString(lookup(rec, "industry", "meta.industry")),
	}
}

// ParseDetail extracts a RawQuote from a quote-equity document.
func ParseDetail(doc map[string]any) (RawQuote, error) {
	info := object(doc, "info")
	if info == nil {
		return RawQuote{}, ErrNoInfo
	}
	price := object(doc, "priceInfo")
	if price == nil {
		price = map[string]any{}
	}
	sec := object(doc, "securityInfo")
	if sec == nil {
		sec = map[string]any{}
	}

	return RawQuote{
		Symbol:        strings.ToUpper(parseString(lookup(info, "symbol"))),
		Name:          parseString(lookup(info, "companyName")),
		LastPrice:     parseDecimal(lookup(price, "lastPrice")),
		Open:          parseDecimal(lookup(price, "open")),
		High:          parseDecimal(lookup(price, "intraDayHighLow.max", "dayHigh")),
		Low:           parseDecimal(lookup(price, "intraDayHighLow.min", "dayLow")),
		PreviousClose: parseDecimal(lookup(price, "previousClose")),
		Volume:        parseInt(lookup(price, "totalTradedVolume")),
		MarketCap:     parseDecimal(lookup(sec, "marketCapitalization")),
		PERatio:       parseDecimal(lookup(sec, "pe", "pdSymbolPe")),
		Sector:        parseString(lookup(sec, "industry")),
	}, nil
}

// ToQuote converts a RawQuote into the canonical Quote. displayName wins
// over the upstream name when non-empty; the symbol is the last resort.
func ToQuote(raw RawQuote, displayName string, asOf time.Time) (model.Quote, error) {
	if raw.Symbol == "" {
		return model.Quote{}, ErrNoSymbol
	}
	if !raw.LastPrice.Valid {
		return model.Quote{}, ErrNoPrice
	}

	name := displayName
	if name == "" {
		name = raw.Name
	}
	if name == "" {
		name = raw.Symbol
	}

	q := model.Quote{
		Symbol:        raw.Symbol,
		DisplayName:   name,
		LastPrice:     raw.LastPrice,
		Open:          raw.Open,
		High:          raw.High,
		Low:           raw.Low,
		PreviousClose: raw.PreviousClose,
		Volume:        raw.Volume,
		MarketCap:     raw.MarketCap,
		PERatio:       raw.PERatio,
		Sector:        raw.Sector,
		AsOf:          asOf,
	}
	q.ChangeAbs, q.ChangePct = change(raw.LastPrice, raw.Open)
	return q, nil
}

// change computes last-open and its percentage of open. Both are absent
// when open is absent or zero.
func change(last, open decimal.NullDecimal) (abs, pct decimal.NullDecimal) {
	if !last.Valid || !open.Valid || open.Decimal.IsZero() {
		return decimal.NullDecimal{}, decimal.NullDecimal{}
	}
	d := last.Decimal.Sub(open.Decimal)
	p := d.Div(open.Decimal).Mul(hundred).Round(2)
	return decimal.NewNullDecimal(d), decimal.NewNullDecimal(p)
}

// Result is the outcome of normalizing one batch of records.
type Result struct {
	Quotes  []model.Quote
	Dropped int
}

// Quotes normalizes a batch of quote records. names maps symbol to the
// registry display name. Records that cannot yield a quote are counted in
// Dropped and skipped.
func Quotes(recs []api.RawRecord, names map[string]string, asOf time.Time) Result {
	res := Result{Quotes: make([]model.Quote, 0, len(recs))}
	for _, rec := range recs {
		raw := ParseQuote(rec)
		q, err := ToQuote(raw, names[raw.Symbol], asOf)
		if err != nil {
			res.Dropped++
			continue
		}
		res.Quotes = append(res.Quotes, q)
	}
	return res
}

// Detail normalizes a quote-equity document.
func Detail(doc api.RawRecord, displayName string, asOf time.Time) (model.Quote, error) {
	raw, err := ParseDetail(doc)
	if err != nil {
		return model.Quote{}, err
	}
	return ToQuote(raw, displayName, asOf)
}

// Indices extracts the wanted indices, in wanted order. A wanted key matches
// a record's indexSymbol, index or key field. Records without a value are
// skipped.
func Indices(recs []api.RawRecord, wanted []string, asOf time.Time) []model.Index {
	byKey := make(map[string]model.Index, len(recs))
	for _, rec := range recs {
		value := parseDecimal(lookup(rec, "last", "lastPrice"))
		if !value.Valid {
			continue
		}
		name := parseString(lookup(rec, "index", "name", "indexSymbol", "key"))
		idx := model.Index{
			Name:      name,
			Value:     value,
			Change:    parseDecimal(lookup(rec, "variation", "change")),
			ChangePct: parseDecimal(lookup(rec, "percentChange", "pChange")),
			AsOf:      asOf,
		}
		for _, field := range []string{"indexSymbol", "index", "key"} {
			k := strings.ToUpper(parseString(rec[field]))
			if k == "" {
				continue
			}
			if _, seen := byKey[k]; !seen {
				byKey[k] = idx
			}
		}
	}

	out := make([]model.Index, 0, len(wanted))
	for _, w := range wanted {
		idx, ok := byKey[strings.ToUpper(w)]
		if !ok {
			continue
		}
		idx.Key = w
		if idx.Name == "" {
			idx.Name = w
		}
		out = append(out, idx)
	}
	return out
}
