/*
Package pipeline orchestrates the ordered analysis stages for one job.

The orchestrator enforces a hard per-stage timeout, converts stage
panics into failed results, stops at the first failure, records
best-effort progress in the registry before each stage, and assembles
the verdict report from the collected stage findings.
*/
package pipeline
