/*
Package api is the HTTP frontend: file submission, job status and
report retrieval under /api/v1, plus the unprefixed health, readiness
and metrics endpoints.
*/
package api
