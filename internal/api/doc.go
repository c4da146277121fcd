// Package api provides the client for the upstream market-data source.
//
// The source is an NSE-style website API that requires a cookie session
// primed by visiting HTML pages before the JSON endpoints respond:
//   - Session priming: GET / then GET /market-data/live-equity-market
//   - Quotes: GET {quotes_path}?symbols=A,B,C
//   - Detail: GET {detail_path}?symbol=X
//   - Indices: GET {indices_path}
//   - Equity catalog: CSV at catalog_url
//
// Responses are untrusted. Records are returned as raw maps with numbers
// preserved as json.Number; the normalize package turns them into quotes.
package api
