// Package lock provides per-resource shared/exclusive locks with bounded
// wait, FIFO fairness and diagnostics.
//
// Resources are identified by canonical record paths, so two callers
// referencing the same logical key always contend on the same lock.
// Waiters are granted strictly in arrival order: an arriving shared
// request queues behind a waiting exclusive one, which keeps writers
// from starving under heavy read load.
//
// A timed-out or cancelled acquisition leaves no lock state behind.
// Releasing a handle twice is a programmer error and panics.
package lock
