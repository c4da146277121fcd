package api

// RawRecord is one untrusted upstream record. Numbers are json.Number.
type RawRecord map[string]any

// quotesEnvelope wraps GET {quotes_path} and GET {indices_path}.
type quotesEnvelope struct {
	Data []RawRecord `json:"data"`
}

// CatalogRow is one row of the equity list CSV.
type CatalogRow struct {
	Symbol string
	Name   string
	Series string
}

// CSV columns of the equity list.
const (
	catalogColSymbol = "SYMBOL"
	catalogColName   = "NAME OF COMPANY"
	catalogColSeries = "SERIES"
)
