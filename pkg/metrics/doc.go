// Package metrics defines the Prometheus collectors for the malscan API
// and worker, registered once at package load, plus the standalone
// metrics/health listener used by the worker process.
package metrics
