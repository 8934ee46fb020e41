/*
Package operations routes operation messages to typed handlers and implements
the Source availability check.

Messages on the operations topic carry a routing key "Model.method" and a JSON
body {"params": {...}, "request_context": {...}}. The Dispatcher maps each
(model, method) pair to a HandlerFunc registered at startup; keys with no
handler are logged as "Not Implemented!" and reported with
StatusNotImplemented. Process acknowledges the message, touches the liveness
file and records the operation metric whatever the outcome, and recovers
handler panics.

Source.availability_check walks a small state machine:

	not_started -> validating -> checking_network -> directive_sent -> resolved
	                    |               |
	                    v               v
	               (error status)    resolved (unavailable)

A missing default endpoint, a missing receptor node, a disconnected node and
a failed directive send each resolve immediately as unavailable with their
own reason. A sent directive is resolved later by the correlator invoking the
Source's OnResponse, OnError or OnTimeout.
*/
package operations
