// Package server exposes the market data service over HTTP with gin.
//
// Routes:
//
//	GET  /health                  service, cache, registry and session state
//	GET  /stocks?skip=&limit=     one page of quotes
//	GET  /stocks/:symbol          detail quote
//	GET  /indices                 configured market indices
//	GET  /cache/stats             cache backend statistics
//	GET  /debug/universe          current registry generation
//	POST /debug/universe/refresh  start a new registry generation
package server
