// Package store implements the keyspace engine and its co-located
// memory and eviction manager.
//
// The data map, the expiry map and the access metadata are guarded by a
// single reader/writer lock. Expiry is lazy: an expired key is removed
// by the next operation that touches it, and because that removal is a
// mutation, even nominal reads like Get and Exists take the write lock.
// Enumeration (Keys, Size) runs under the read lock and performs no
// expiry side effects.
package store
