// Package snapshot persists the keyspace as a single checksummed JSON
// document.
//
// Saves are atomic: the document is written to a temp file, fsynced, and
// renamed over the primary, with the previous primary kept as a .bak
// backup. Loads verify a sha256 checksum over the serialized payload and
// fall back to the backup when the primary is missing or corrupt; a
// valid backup is promoted back to the primary path. When both files are
// unusable the engine starts empty rather than refusing to boot.
package snapshot
