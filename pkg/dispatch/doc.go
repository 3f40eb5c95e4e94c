// Package dispatch turns daemon reference readiness into callbacks on an
// execution context chosen by the application.
//
// For every watched reference the dispatcher keeps a duplicate of the
// daemon's descriptor and a goroutine blocked on it through the runtime
// poller. When the descriptor becomes readable the goroutine hands one
// ProcessResult call to the current Executor and waits for it to finish
// before waiting again, so deliveries for one reference never overlap.
//
// Where results run is decided by a Selector:
//
//	q := dispatch.NewQueue(64)
//	sel := dispatch.NewSelector()
//	sel.SetTarget(q)
//	d := dispatch.New(daemon, dispatch.Config{Selector: sel})
//	go q.Run(ctx) // or q.Drain() from a main loop
//
// Unwatch marks the watch as stopping and closes its duplicate descriptor,
// which wakes a pending wait. A callback may Unwatch its own reference.
// A watch whose reference fails is dropped and reported to the AbandonFunc
// given to Watch.
package dispatch
