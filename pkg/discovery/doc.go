// Package discovery implements DNS-SD service sessions on top of a resolver
// daemon.
//
// A Session covers one service instance and can publish it, resolve it to a
// host, port and address set, and monitor its attribute (TXT) record. Results
// arrive as events on the execution context chosen through package dispatch:
//
//	sess, err := discovery.NewSession(discovery.SessionConfig{
//		Name:       "printer",
//		Type:       "_ipp._tcp",
//		Daemon:     d,
//		Dispatcher: disp,
//	})
//	sess.OnEvent(func(ev discovery.Event) {
//		if ev.Type == discovery.EventResolved {
//			fmt.Println(ev.HostName, ev.Addresses)
//		}
//	})
//	err = sess.ResolveWithTimeout(2 * time.Second)
//
// # States
//
// A session is Idle, Publishing, Resolving or in AddressLookup. Monitoring is
// independent of these and survives Stop.
//
// Resolving ends in exactly one of Resolved or NotResolved. A resolve that
// has not produced its address set before the deadline is torn down and
// reported with a TimeoutError; replies arriving afterwards are ignored.
//
// # Errors
//
// Argument and lifecycle problems are returned directly. Daemon failures of
// Publish and Resolve are reported through NotPublished and NotResolved
// carrying a *daemon.Error. StartMonitoring and SetAttributeRecord report
// daemon failures synchronously.
package discovery
