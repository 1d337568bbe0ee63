/*
Package types defines the core data structures shared across the malscan
pipeline: files, jobs, queue messages, stage results, and the report
document.

The two durable entities are File and Job. A File is the deduplication
identity of an uploaded artifact, keyed by its SHA256 digest; a Job is a
single analysis run against a File. Many jobs may point at one file (the
back-reference is a query, never a held collection).

Job lifecycle:

	queued ──► scanning ──► done   (result set, stages_done = stages_total)
	                   └──► failed (error_message set, result null)

Terminal states are immutable. StageResult and Report are value types
serialized as JSON: StageResults flow between stages inside the worker,
and the Report is persisted into the jobs.result JSONB column on success.
*/
package types
