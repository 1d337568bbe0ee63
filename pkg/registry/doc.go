/*
Package registry persists files and jobs in Postgres and is the
synchronization point for job state.

All mutations are single-row updates, so no external locking is needed:
the submission path inserts files (upsert-by-digest) and jobs, the
worker advances status and per-stage progress, and the query endpoints
read jobs by id. The terminal transitions (done with a report, failed
with an error message) must succeed before the worker acknowledges a
message; intermediate progress writes are best-effort.

The Store interface fronts the Postgres implementation so the API and
worker can be tested against an in-memory fake.
*/
package registry
