// Package marketdata is the cache-aside orchestrator in front of the
// ingestion pipeline.
//
// Every read checks the cache first. A miss is coalesced per cache key and
// fetched through the pipeline; successful results are written back along
// with a long-lived stale copy. When the upstream fails the service degrades
// in a fixed order: the stale copy if one exists, the placeholder dataset for
// the first page only, and otherwise the reported error.
package marketdata
