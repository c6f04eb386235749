// Package respserver serves the keyspace over the RESP wire protocol.
//
// Each accepted connection gets its own goroutine running a read loop;
// commands on one connection execute in arrival order. A connection
// that subscribes to a channel or pattern enters subscriber mode, where
// a pump goroutine drains its queue onto the wire and only the
// subscription management commands remain available.
package respserver
