// Package app provides application initialization and lifecycle management.
// It wires configuration, logging, OpenTelemetry, the data sources, the report
// service, delivery, the scheduler and the HTTP/WebSocket surface together.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, config.yaml, CHAN_* environment)
//	2. Initialize logging and OpenTelemetry
//	3. Build the data sources (CSV file, or RTI with Stockbit fallback)
//	4. Create the report service, websocket hub and health service
//	5. Choose the notifier (Telegram, or stdout) and register the daily schedules
//	6. Set up the router and HTTP server
//
// # Usage
//
//	app, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until SIGINT or SIGTERM, then shuts the server, the scheduler,
// the hub and the telemetry providers down in that order.
package app
