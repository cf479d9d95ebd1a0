// Package batch runs many items through the pipeline and aggregates their
// outcomes.
//
// The default mode is strictly sequential with a pacing delay between items.
// With more than one worker, items run in parallel across a fixed pool while
// the per-service throttle gates held by each stage bound the load on upstream
// services. Either way a failing or panicking item never stops the batch, and
// cancellation records every unfinished item as failed.
//
// The package also owns candidate-list plumbing: the `all | n | a-b`
// selection syntax and reading or writing candidate and summary files.
package batch
