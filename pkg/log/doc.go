/*
Package log provides structured logging for the Satellite operations worker
using zerolog.

A single package-level zerolog.Logger is configured once at process start via
Init and shared by every component. Components derive child loggers that carry
a fixed field so log lines can be filtered per subsystem or per request:

	┌──────────────────── LOGGING ─────────────────────────────┐
	│                                                            │
	│  log.Init(Config{Level, JSONOutput, Output})               │
	│        │                                                   │
	│        ▼                                                   │
	│  log.Logger (global, "app" field attached)                 │
	│        │                                                   │
	│        ├── WithComponent("correlator")                     │
	│        ├── WithComponent("dispatcher")                     │
	│        ├── WithSourceID("201")                             │
	│        ├── WithMessageID("a1b2c3")                         │
	│        └── WithOperation("Source.availability_check")      │
	└────────────────────────────────────────────────────────────┘

JSON output is meant for production log shipping; the console writer is for
local runs. Before Init is called the global Logger is the zero value and
discards everything, which keeps package tests quiet.

# Usage

	log.Init(log.Config{Level: log.ParseLevel("debug"), JSONOutput: true})

	logger := log.WithComponent("receptor")
	logger.Info().
		Str("node_id", nodeID).
		Msg("Directive sent")

	log.WithSourceID(sourceID).Error().
		Err(err).
		Msg("Failed to update Source")
*/
package log
