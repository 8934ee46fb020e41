/*
Package receptor is the HTTP client for the receptor controller.

The controller exposes two endpoints: POST /connection/status reports whether
a receptor node is connected, and POST /job forwards a directive to a node and
answers with a message ID. The directive's results arrive later on the
controller's response topic and are matched to the sender by the
correlator.Correlator owned by Client.

A process creates exactly one Client and calls Start once; the first call
creates the correlator and its listener goroutine, later calls return the
same instance. SendDirective registers the callback before it returns, so a
fast response frame can never find the message ID unknown.

Connection binds a Client to a tenant account and knows the satellite health
check directive:

	client := receptor.NewClient(cfg, opener)
	client.Start(ctx)
	defer client.Stop()

	conn := receptor.NewConnection(account, client)
	status, err := conn.Status(ctx, nodeID)
	msgID, err := conn.SendAvailabilityCheck(ctx, sourceRef, nodeID, checker)
*/
package receptor
