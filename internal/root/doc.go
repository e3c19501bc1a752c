// Package root owns the watch-root lifecycle: the registry of watched
// paths, per-root liveness accounting (triggers, subscriptions,
// in-flight requests, last activity), and the idle reaper that tears
// down roots nobody is using.
//
// Synchronization is per root. The registry map has its own short-held
// mutex for insert, lookup, and remove; it is never held across
// teardown I/O, so reaping one root cannot stall another root or a new
// watch.
package root
