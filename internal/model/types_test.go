package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestHasMore(t *testing.T) {
	tests := []struct {
		name           string
		skip, n, total int
		want           bool
	}{
		{"middle page", 20, 20, 45, true},
		{"last partial page", 40, 5, 45, false},
		{"first page", 0, 20, 45, true},
		{"past end", 60, 0, 45, false},
		{"empty universe", 0, 0, 0, false},
		{"dropped items keep has_more", 40, 3, 45, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasMore(tt.skip, tt.n, tt.total); got != tt.want {
				t.Errorf("HasMore(%d, %d, %d) = %v, want %v", tt.skip, tt.n, tt.total, got, tt.want)
			}
		})
	}
}

func TestNewPage_EmptyItemsEncodeAsArray(t *testing.T) {
	p := NewPage(50, 20, 45, nil)

	if p.HasMore {
		t.Error("HasMore = true, want false")
	}
	if p.Source != SourceLive {
		t.Errorf("Source = %q, want %q", p.Source, SourceLive)
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["items"]) != "[]" {
		t.Errorf("items = %s, want []", raw["items"])
	}
	if _, ok := raw["error"]; ok {
		t.Error("error field should be omitted on success")
	}
}

func TestQuote_AbsentFieldsEncodeAsNull(t *testing.T) {
	q := Quote{
		Symbol:    "TCS",
		LastPrice: decimal.NewNullDecimal(decimal.RequireFromString("3420.75")),
	}

	b, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["open"]) != "null" {
		t.Errorf("open = %s, want null", raw["open"])
	}
	if string(raw["volume"]) != "null" {
		t.Errorf("volume = %s, want null", raw["volume"])
	}

	var back Quote
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal quote: %v", err)
	}
	if !back.LastPrice.Valid || !back.LastPrice.Decimal.Equal(decimal.RequireFromString("3420.75")) {
		t.Errorf("LastPrice = %v, want 3420.75", back.LastPrice)
	}
	if back.Open.Valid {
		t.Error("Open should stay absent after a round trip")
	}
}
