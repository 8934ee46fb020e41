/*
Package correlator matches asynchronous receptor responses to the directives
that caused them.

A directive is sent to the receptor controller over HTTP and answered much
later on a separate response topic. The controller returns a message ID for
every directive; the sender registers that ID together with a Callback, and
the Correlator's listener goroutine delivers each frame on the response topic
to the callback registered for the frame's in_response_to field.

	  directive path (worker goroutine)          listener goroutine
	  ─────────────────────────────────          ──────────────────
	  POST /job ──► id                            Subscribe(response topic)
	  Register(id, cb) ──────┐                          │
	                         ▼                          ▼
	                  ┌─────────────┐  Resolve/Retire  HandleMessage(frame)
	                  │  Registry   │◄─────────────────  code, message_type
	                  └─────────────┘                   │
	                                                    ▼
	                               cb.OnResponse / cb.OnError / cb.OnTimeout

# Frame contract

Each ID receives zero or more "response" frames followed by exactly one
terminal frame: "eof" (stream closed), "error" or "timeout". Response frames
never retire the registration; terminal frames retire it before the callback
runs, so a late duplicate is reported as an unknown ID.

Frames with a non-zero code are remote node failures. With the default
DropRemoteErrors policy they are logged and dropped, leaving the registration
for the controller's timeout; RouteRemoteErrors delivers them to OnError.

Unknown IDs and malformed frames are logged and dropped. Callback panics are
recovered so the listener keeps running for the life of the process.
*/
package correlator
