// Package wal implements a write-ahead log for keyspace mutations.
//
// Every mutation is appended to a single log file as a length-prefixed,
// crc32-checked JSON frame. On startup the log is replayed over the last
// snapshot to recover writes that happened after it; after a successful
// snapshot the log is truncated, since the snapshot now covers its
// contents. A torn frame at the tail of the file is expected after a
// crash and ends replay silently; a bad frame before the tail is
// reported so the operator knows entries were lost.
package wal
