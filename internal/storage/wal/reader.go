package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// maxFrameLen bounds a single frame so a corrupt length prefix cannot
// trigger a huge allocation.
const maxFrameLen = 64 << 20

// Replay reads every entry from the log file in append order. A missing
// file yields no entries. A torn frame at the tail, the normal residue
// of a crash mid-append, ends replay without error; a corrupt frame
// followed by more data returns the entries read so far alongside an
// error wrapping ErrCorruptedEntry.
func Replay(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: open for replay: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var entries []Entry
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			// Torn length prefix at the tail.
			return entries, nil
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if length < 5 || length > maxFrameLen {
			return entries, fmt.Errorf("%w: frame length %d", ErrCorruptedEntry, length)
		}

		frame := make([]byte, length)
		if _, err := io.ReadFull(r, frame); err != nil {
			// Torn frame body at the tail.
			return entries, nil
		}

		entry, err := decodeEntryFrame(frame)
		if err != nil {
			if tail, peekErr := atEOF(r); peekErr == nil && tail {
				// The last frame was half-written; nothing after
				// it was lost.
				return entries, nil
			}
			return entries, fmt.Errorf("wal: replay stopped: %w", err)
		}
		entries = append(entries, entry)
	}
}

func atEOF(r *bufio.Reader) (bool, error) {
	_, err := r.Peek(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
