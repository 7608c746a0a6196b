// Package storage is the sqlite persistence layer behind the sweep jobs.
//
// The sweepers consume a narrow gateway: cursor-paginated scans ordered by
// the immutable row id, conditional batch updates ("update where id in (...)
// and state still matches"), and batched device lookups. The conditional
// update is the concurrency-safety primitive: a row already transitioned by
// a concurrent check-in is silently skipped, which makes overlapping sweep
// cycles and sweep-vs-request races idempotent.
package storage
