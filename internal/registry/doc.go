// Package registry resolves the universe of tradable instruments.
//
// The universe is loaded from a catalog Source at most once per Registry
// lifetime (or after an explicit Invalidate), so the same pagination offset
// addresses the same symbol for the whole generation. When the source fails
// or returns nothing usable, a fixed fallback list is used instead; Resolve
// never fails.
package registry
