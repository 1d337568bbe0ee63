/*
Package worker is the consuming side of the job queue: it pulls one
message at a time, fetches the artifact, runs the pipeline, and writes
the terminal outcome before acknowledging. Failed attempts are requeued
until the retry budget is spent, then recorded as failed and routed to
the dead letter queue.
*/
package worker
