// Package artifact is the content-addressed blob store. Blobs are keyed
// by their SHA256 digest, so equal bytes collapse to one object and
// writes are idempotent; concurrent writers of the same digest are safe.
// Failures are treated as transient and retried with bounded backoff.
package artifact
