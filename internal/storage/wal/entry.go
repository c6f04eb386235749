package wal

import (
	"errors"
	"time"

	"github.com/solask/emberdb/internal/core/value"
)

var (
	ErrInvalidEntryType = errors.New("wal: invalid entry type")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
)

// OpType identifies the mutation an entry records.
type OpType uint8

const (
	OpTypeUnspecified OpType = iota
	OpTypeSet
	OpTypeDelete
	OpTypeExpire
	OpTypePersist
	OpTypeClear
)

// Entry is a single logged mutation.
//
// For OpTypeSet the full resulting value is recorded, even when the
// command only touched part of a collection, so replay never needs the
// pre-image. ExpireAt carries an absolute deadline in unix milliseconds;
// KeepTTL marks in-place collection writes that must not disturb an
// existing deadline on replay.
type Entry struct {
	Op        OpType
	Key       string
	Value     *value.Value
	ExpireAt  int64
	KeepTTL   bool
	Timestamp int64
}

// NewSet records a plain write, which clears any existing deadline.
func NewSet(key string, v value.Value) Entry {
	return Entry{Op: OpTypeSet, Key: key, Value: &v, Timestamp: nowMillis()}
}

// NewSetTTL records a write with an expiry deadline.
func NewSetTTL(key string, v value.Value, deadline time.Time) Entry {
	return Entry{Op: OpTypeSet, Key: key, Value: &v, ExpireAt: deadline.UnixMilli(), Timestamp: nowMillis()}
}

// NewMutate records an in-place collection write that keeps the key's
// current deadline.
func NewMutate(key string, v value.Value) Entry {
	return Entry{Op: OpTypeSet, Key: key, Value: &v, KeepTTL: true, Timestamp: nowMillis()}
}

// NewDelete records a key removal.
func NewDelete(key string) Entry {
	return Entry{Op: OpTypeDelete, Key: key, Timestamp: nowMillis()}
}

// NewExpire records a deadline change on an existing key.
func NewExpire(key string, deadline time.Time) Entry {
	return Entry{Op: OpTypeExpire, Key: key, ExpireAt: deadline.UnixMilli(), Timestamp: nowMillis()}
}

// NewPersist records a deadline removal.
func NewPersist(key string) Entry {
	return Entry{Op: OpTypePersist, Key: key, Timestamp: nowMillis()}
}

// NewClear records a full keyspace wipe.
func NewClear() Entry {
	return Entry{Op: OpTypeClear, Timestamp: nowMillis()}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
