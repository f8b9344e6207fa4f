// Package statswriter persists node stats snapshots to PostgreSQL in
// batches. Snapshots arrive roughly once a minute per node, so batches are
// small; the writer exists to keep database writes off the event path.
package statswriter
