// Package pipeline implements batched, paced ingestion of quotes.
//
// A page request resolves the instrument universe, slices it by skip and
// limit, splits the slice into fixed-size chunks, and fetches the chunks
// concurrently. Every chunk takes its own turn through the session gate.
// Records are normalized defensively and reassembled in universe order.
//
// A chunk failure is isolated: it contributes no quotes and marks the page
// partial. Only when every chunk fails does the page carry an error.
package pipeline
