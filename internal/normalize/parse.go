// Package normalize turns untrusted upstream records into canonical quotes.
//
// Every field extraction yields present or absent and never fails; a
// malformed field degrades that field only. A record is dropped only when it
// has no symbol or no usable last price.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinels the upstream uses for "no value".
var absentTokens = map[string]struct{}{
	"":     {},
	"-":    {},
	"--":   {},
	"N/A":  {},
	"NA":   {},
	"NIL":  {},
	"NULL": {},
	"NAN":  {},
}

// parseDecimal extracts a decimal from a JSON value.
func parseDecimal(v any) decimal.NullDecimal {
	switch x := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case json.Number:
		return parseDecimalString(x.String())
	case string:
		return parseDecimalString(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(x))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(x)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(x))
	default:
		return decimal.NullDecimal{}
	}
}

func parseDecimalString(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if _, ok := absentTokens[strings.ToUpper(s)]; ok {
		return decimal.NullDecimal{}
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSuffix(s, "%")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// parseInt extracts a whole number, truncating any fraction.
func parseInt(v any) *int64 {
	if n, ok := v.(json.Number); ok {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return &i
		}
	}
	d := parseDecimal(v)
	if !d.Valid {
		return nil
	}
	if d.Decimal.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return nil
	}
	i := d.Decimal.IntPart()
	return &i
}

// parseString extracts trimmed text. Numbers are rendered as-is.
func parseString(v any) string {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if _, ok := absentTokens[strings.ToUpper(s)]; ok {
			return ""
		}
		return s
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

// lookup returns the first present value among alias paths. A path is a
// dot-separated walk through nested objects.
func lookup(rec map[string]any, paths ...string) any {
	for _, p := range paths {
		if v, ok := walk(rec, p); ok && v != nil {
			return v
		}
	}
	return nil
}

func walk(rec map[string]any, path string) (any, bool) {
	cur := rec
	for {
		head, rest, nested := strings.Cut(path, ".")
		v, ok := cur[head]
		if !ok {
			return nil, false
		}
		if !nested {
			return v, true
		}
		next, isObj := v.(map[string]any)
		if !isObj {
			return nil, false
		}
		cur, path = next, rest
	}
}

func object(rec map[string]any, key string) map[string]any {
	m, _ := rec[key].(map[string]any)
	return m
}
