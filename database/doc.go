// Package database provides the PostgreSQL connection pool backing the
// optional node-stats history. The pool is only opened when stats
// persistence is enabled in config.
package database
