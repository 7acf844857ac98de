// Package api serves one configuration session over HTTP.
//
//	GET   /api/v1/sections              namespaces and their fields
//	GET   /api/v1/sections/{namespace}  read a section from the station
//	PUT   /api/v1/sections/{namespace}  write a whole section
//	PATCH /api/v1/sections/{namespace}  change some fields, keep the rest
//
// PUT and PATCH bodies are JSON objects of field values and go through the same
// canonicalize/validate pipeline as the CLI. Failures are JSON
// ErrorResponse bodies: 422 with per-field violations, 404 for an unknown
// namespace, 409 when the session is closed or taken, 502 when the station
// link fails and 504 when it times out.
package api
