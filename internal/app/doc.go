// Package app wires the tabflow server together: configuration, logging,
// OpenTelemetry, the pipeline manager, the WebSocket hub and the HTTP
// router.
//
// # Initialization Flow
//
//	1. Resolve and create the data and output directories
//	2. Create business and runtime metrics on the configured meter
//	3. Create the pipeline registry and manager, observed by the hub
//	4. Set up middleware and routes
//	5. Create the HTTP server
//
// # Usage
//
//	application, err := app.New(cfg, logger, providers)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
//
// # Graceful Shutdown
//
// Run returns when ctx is cancelled (main derives it from SIGINT and
// SIGTERM). In-flight requests get Server.ShutdownTimeout to finish, the
// hub closes its clients and the telemetry providers are flushed.
//
// The app does not call os.Exit(); errors are returned to main.
package app
