// Package http contains the chi HTTP handlers for the REST API. Handlers
// stay thin: they decode and validate requests, call a service, and render
// the result; domain errors are mapped to API errors in one place.
package http
