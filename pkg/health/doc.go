/*
Package health provides liveness and dependency probing for the Satellite
operations worker.

Two mechanisms live here:

  - FileToucher updates the mtime of a liveness file after every processed
    operation message. The orchestrator's liveness probe fails the pod when
    the file goes stale, which catches a wedged bus consumer.

  - Monitor runs Checker probes (HTTPChecker for the receptor controller and
    the Sources API, TCPChecker for the message bus) on an interval and reports
    each dependency to the metrics health registry. A dependency is only
    reported unhealthy after Config.Retries consecutive failures.

	┌──────────── Monitor ────────────┐
	│  every Interval:                 │
	│    for each Probe                │
	│      Checker.Check(ctx, Timeout) │
	│      Status.Update(result)       │──► ReportFunc(name, healthy, msg)
	└──────────────────────────────────┘

Probe failures are informational: the worker keeps consuming operations while a
dependency is down, and the availability checker records the resulting
failures per Source.
*/
package health
