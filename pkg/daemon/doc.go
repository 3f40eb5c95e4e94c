// Package daemon defines the resolver daemon contract used by sessions and
// provides an in-process implementation on top of zeroconf.
//
// A daemon works with references. Each Create call starts one asynchronous
// operation (register, resolve or query) and returns a ServiceRef together
// with a file descriptor that becomes readable whenever a reply is pending.
// The owner waits for readability, then calls ProcessResult, which runs the
// callback registered at creation with exactly one reply:
//
//	ref, err := d.CreateResolveReference("printer", "_ipp._tcp", "local.", onReply)
//	fd, err := d.SocketFD(ref)
//	// ... wait until fd is readable ...
//	err = d.ProcessResult(ref)
//	// ...
//	d.Deallocate(ref)
//
// Table implements the reference/descriptor bookkeeping for in-process
// daemons. ZeroconfDaemon uses it to bridge zeroconf's channel based API into
// this model, and tests use it to script replies.
//
// Error codes and flag values follow dns_sd.h so that a daemon speaking the
// native protocol can be dropped in behind the same interface.
package daemon
