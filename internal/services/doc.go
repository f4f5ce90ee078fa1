// Package services holds the application logic between the transports
// (HTTP, scheduler, websocket) and the analysis core.
//
// ReportService performs one analysis run end to end:
//
//	symbols  := fixed list | scraped RTI symbols | upstream top-foreign list | fallback list
//	prefetch := bounded concurrent fetch into memory
//	entries  := flow.Analyzer over the prefetched data
//	text     := flow.Render(entries)
//
// The latest report is kept in memory for the HTTP surface, broadcast to
// websocket clients and optionally exported to disk. Only one run executes
// at a time; a second request gets ErrRunInProgress.
//
// HealthService reports liveness, readiness and build information.
//
// Services take their collaborators as small interfaces and a *slog.Logger
// through their constructors so they can be tested with fakes.
package services
