/*
Package metrics provides Prometheus metrics and the health/readiness registry
for the Satellite operations worker.

All collectors are package-level variables registered with the default
Prometheus registry at init time. They are updated inline by the component
that owns the event:

	┌──────────────────── METRICS ─────────────────────────────┐
	│                                                            │
	│  dispatcher   satellite_operations_total{operation,status} │
	│               satellite_operation_duration_seconds         │
	│  checker      satellite_availability_checks_total{result}  │
	│  correlator   satellite_receptor_frames_total{kind,result} │
	│               satellite_receptor_pending_requests          │
	│  receptor     satellite_receptor_requests_total            │
	│               satellite_receptor_request_duration_seconds  │
	│  inventory    satellite_inventory_requests_total           │
	│                                                            │
	│  NewServeMux: /metrics /health /ready /live                │
	└────────────────────────────────────────────────────────────┘

Operation status values are StatusSuccess, StatusError, StatusNotImplemented
and StatusSkipped. An availability check that resolves to "unavailable" is still
a successful operation; the availability outcome is counted separately in
satellite_availability_checks_total.

# Health

Components report their state with RegisterComponent/UpdateComponent. The
critical components ("bus" and "correlator" by default) decide the outcome:

	/health  unhealthy (503) when a critical component is down,
	         degraded (200) when only a probed dependency is down
	/ready   ready once every critical component is registered and healthy
	/live    always 200, with the time of the last processed operation
*/
package metrics
