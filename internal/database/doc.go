// Package database provides the PostgreSQL connection pool used by the
// postgres instrument catalog source.
package database
