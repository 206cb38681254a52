/*
Package log provides structured logging for the LightOS driver using
zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific child loggers, configurable log levels,
and helper functions for common logging patterns. All logs include
timestamps and support filtering by severity level.

# Usage

Initialize once at startup:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Create component loggers for long-lived objects:

	logger := log.WithComponent("driver")
	logger.Info().Str("volume_name", name).Msg("volume created")

Lifecycle controllers attach volume/snapshot/project fields so a single
operation can be traced across the command channel and the controllers.
*/
package log
