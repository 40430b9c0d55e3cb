// Package sqlite contains the SQLite persistence for normal estimation runs.
//
// The schema is owned by the embedded golang-migrate migrations; Open
// applies them before returning. Every read and write of run records goes
// through RunStore so callers stay free of SQL.
package sqlite
