// Package http implements the HTTP handlers of the chanalysis service.
//
// Handlers are thin: they parse and validate the request, call a service
// and render the result. Errors are passed to the shared
// errors.ErrorHandler, which writes RFC 7807 problem details.
//
// Routes (mounted by the app package):
//
//	GET  /                    plain-text liveness line
//	GET  /api/health          overall health
//	GET  /api/health/live     liveness
//	GET  /api/health/ready    readiness
//	GET  /api/version         build information
//	GET  /api/report          latest report as JSON
//	GET  /api/report/text     latest report as rendered text
//	POST /api/report/run      run now; optional top_n, period, symbols query
package http
