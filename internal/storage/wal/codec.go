package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/solask/emberdb/internal/core/value"
)

// Frame layout: [length:4][crc32:4][type:1][payload JSON]. Length covers
// everything after itself; the crc covers type byte plus payload.
const frameHeaderSize = 8

type wirePayload struct {
	Timestamp int64        `json:"ts"`
	Key       string       `json:"key,omitempty"`
	Value     *value.Value `json:"value,omitempty"`
	ExpireAt  int64        `json:"expire_at,omitempty"`
	KeepTTL   bool         `json:"keep_ttl,omitempty"`
}

func encodeEntryFrame(e Entry) ([]byte, error) {
	if e.Op == OpTypeUnspecified {
		return nil, ErrInvalidEntryType
	}
	if e.Op == OpTypeSet && e.Value == nil {
		return nil, fmt.Errorf("wal: missing value for set entry")
	}

	payload, err := json.Marshal(wirePayload{
		Timestamp: e.Timestamp,
		Key:       e.Key,
		Value:     e.Value,
		ExpireAt:  e.ExpireAt,
		KeepTTL:   e.KeepTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("wal: marshal payload: %w", err)
	}

	body := make([]byte, 0, 1+len(payload))
	body = append(body, byte(e.Op))
	body = append(body, payload...)
	crc := crc32.ChecksumIEEE(body)

	out := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(4+len(body)))
	binary.BigEndian.PutUint32(out[4:8], crc)
	return append(out, body...), nil
}

func decodeEntryFrame(frame []byte) (Entry, error) {
	// Frame here excludes the length prefix: [crc32:4][type:1][payload].
	if len(frame) < 5 {
		return Entry{}, ErrCorruptedEntry
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if crc32.ChecksumIEEE(body) != wantCRC {
		return Entry{}, ErrChecksumMismatch
	}

	op := OpType(body[0])
	switch op {
	case OpTypeSet, OpTypeDelete, OpTypeExpire, OpTypePersist, OpTypeClear:
	default:
		return Entry{}, ErrInvalidEntryType
	}

	var p wirePayload
	if err := json.Unmarshal(body[1:], &p); err != nil {
		return Entry{}, fmt.Errorf("wal: unmarshal payload: %w", err)
	}
	if op == OpTypeSet && p.Value == nil {
		return Entry{}, fmt.Errorf("wal: missing value for set entry")
	}

	return Entry{
		Op:        op,
		Key:       p.Key,
		Value:     p.Value,
		ExpireAt:  p.ExpireAt,
		KeepTTL:   p.KeepTTL,
		Timestamp: p.Timestamp,
	}, nil
}
