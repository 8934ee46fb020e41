/*
Package worker runs the satellite operations consumer loop.

A Worker subscribes to the operations topic as a member of a consumer group
and hands each message, one at a time, to an operations.Dispatcher. The
receptor client's response listener runs in its own goroutine, started by Run
and stopped after the subscription ends:

	Run(ctx)
	  ├─ clear directives abandoned by a previous run
	  ├─ open bus connection
	  ├─ receptor.Start        (response listener goroutine)
	  ├─ Subscribe(operations) ─► dispatcher.Process(msg) ... until ctx done
	  ├─ receptor.Stop         (join listener)
	  └─ close bus connection

Availability checks whose directive is still pending at shutdown are
abandoned: nothing is persisted for them and the next trigger checks the
Source again.
*/
package worker
