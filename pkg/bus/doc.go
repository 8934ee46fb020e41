/*
Package bus defines the message bus contract used by the operations worker and
the receptor response correlator.

Two independent consumers use the bus: the Worker consumes the operations topic
and the correlator consumes the receptor controller's response topic. Each opens
its own Client through an Opener so that no connection handle is shared between
goroutines. Implementations live in sub-packages:

	bus/memory   in-process broker, used by tests and single-binary setups
	bus/natsbus  NATS queue subscriptions for production deployments

Subscribe is blocking and delivers sequentially; callers that want concurrency
run Subscribe on their own goroutine.
*/
package bus
