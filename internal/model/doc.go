// Package model defines shared data types used across stockcache.
//
// Conventions:
//   - Prices: decimal.NullDecimal; Valid=false means the upstream gave no usable value,
//     which is distinct from a value of zero
//   - Volumes: *int64, nil when absent
//   - Timestamps: time.Time in UTC
package model
