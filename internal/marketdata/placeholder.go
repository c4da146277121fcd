package marketdata

import (
	"time"

	"github.com/rickgao/stockcache/internal/api"
	"github.com/rickgao/stockcache/internal/model"
	"github.com/rickgao/stockcache/internal/normalize"
)

// placeholderRecords is the labeled dataset served for the first page when
// the upstream is down and nothing has been cached yet. Values go through the
// same parser as live records.
var placeholderRecords = []api.RawRecord{
	{"symbol": "RELIANCE", "companyName": "Reliance Industries Limited", "lastPrice": "2,850.50", "open": "2820", "dayHigh": "2860", "dayLow": "2815", "totalTradedVolume": "2500000"},
	{"symbol": "TCS", "companyName": "Tata Consultancy Services Limited", "lastPrice": "3,420.75", "open": "3450", "dayHigh": "3465", "dayLow": "3410", "totalTradedVolume": "1800000"},
	{"symbol": "HDFCBANK", "companyName": "HDFC Bank Limited", "lastPrice": "1,650.25", "open": "1635", "dayHigh": "1660", "dayLow": "1630", "totalTradedVolume": "3200000"},
	{"symbol": "ICICIBANK", "companyName": "ICICI Bank Limited", "lastPrice": "1,125.80", "open": "1140", "dayHigh": "1145", "dayLow": "1120", "totalTradedVolume": "4100000"},
	{"symbol": "INFY", "companyName": "Infosys Limited", "lastPrice": "1,725.40", "open": "1690", "dayHigh": "1730", "dayLow": "1685", "totalTradedVolume": "2200000"},
	{"symbol": "HINDUNILVR", "companyName": "Hindustan Unilever Limited", "lastPrice": "2,480.60", "open": "2465", "dayHigh": "2490", "dayLow": "2460", "totalTradedVolume": "950000"},
	{"symbol": "ITC", "companyName": "ITC Limited", "lastPrice": "445.20", "open": "442", "dayHigh": "448", "dayLow": "440", "totalTradedVolume": "8500000"},
	{"symbol": "SBIN", "companyName": "State Bank of India", "lastPrice": "612.40", "open": "615", "dayHigh": "618", "dayLow": "610", "totalTradedVolume": "12000000"},
	{"symbol": "BHARTIARTL", "companyName": "Bharti Airtel Limited", "lastPrice": "985.50", "open": "975", "dayHigh": "990", "dayLow": "970", "totalTradedVolume": "4500000"},
	{"symbol": "KOTAKBANK", "companyName": "Kotak Mahindra Bank Limited", "lastPrice": "1,820.15", "open": "1835", "dayHigh": "1840", "dayLow": "1815", "totalTradedVolume": "1500000"},
	{"symbol": "LT", "companyName": "Larsen & Toubro Limited", "lastPrice": "3,150.80", "open": "3100", "dayHigh": "3170", "dayLow": "3090", "totalTradedVolume": "1100000"},
	{"symbol": "AXISBANK", "companyName": "Axis Bank Limited", "lastPrice": "1,050.25", "open": "1045", "dayHigh": "1060", "dayLow": "1040", "totalTradedVolume": "3800000"},
	{"symbol": "ASIANPAINT", "companyName": "Asian Paints Limited", "lastPrice": "3,240.50", "open": "3280", "dayHigh": "3290", "dayLow": "3230", "totalTradedVolume": "650000"},
	{"symbol": "MARUTI", "companyName": "Maruti Suzuki India Limited", "lastPrice": "10,450.00", "open": "10380", "dayHigh": "10500", "dayLow": "10350", "totalTradedVolume": "420000"},
	{"symbol": "TITAN", "companyName": "Titan Company Limited", "lastPrice": "3,580.75", "open": "3540", "dayHigh": "3600", "dayLow": "3530", "totalTradedVolume": "780000"},
}

// PlaceholderSize is the number of quotes in the placeholder dataset.
var PlaceholderSize = len(placeholderRecords)

// placeholderPage builds the first page of the placeholder dataset.
func placeholderPage(limit int, asOf time.Time) model.Page {
	quotes := normalize.Quotes(placeholderRecords, nil, asOf).Quotes
	items := quotes[:min(limit, len(quotes))]
	page := model.NewPage(0, limit, len(quotes), items)
	page.Source = model.SourcePlaceholder
	page.AsOf = asOf
	return page
}
