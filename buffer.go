package linestream

import "bytes"

// Delimiter terminates every frame on the wire. It is never part of a frame.
const Delimiter byte = '\n'

// frameBuffer is a fixed-capacity arena holding bytes read from the source
// but not yet consumed as frames.
//
// Bytes [0, filled) are pending data and bytes [filled, cap) are free space
// for the next read. Bytes [0, scanned) are known to contain no delimiter.
type frameBuffer struct {
	buf     []byte
	filled  int
	scanned int
}

func newFrameBuffer(size int) *frameBuffer {
	return &frameBuffer{buf: make([]byte, size)}
}

// appendRegion returns the writable tail of the buffer.
// A full buffer means a frame cannot fit, since scanning always runs first.
func (b *frameBuffer) appendRegion() ([]byte, error) {
	if b.filled == len(b.buf) {
		return nil, ErrFrameTooLarge
	}
	return b.buf[b.filled:], nil
}

// recordWrite accounts for n bytes written into the append region.
func (b *frameBuffer) recordWrite(n int) {
	if n < 0 || n > len(b.buf)-b.filled {
		panic("linestream: invalid write count")
	}
	b.filled += n
}

// scanDelimiter returns the index of the first delimiter in the pending data,
// or -1. Only bytes appended since the last scan are inspected.
func (b *frameBuffer) scanDelimiter() int {
	idx := bytes.IndexByte(b.buf[b.scanned:b.filled], Delimiter)
	if idx < 0 {
		b.scanned = b.filled
		return -1
	}
	return b.scanned + idx
}

// compact drops the first past bytes and moves the residual to offset 0.
func (b *frameBuffer) compact(past int) {
	n := copy(b.buf, b.buf[past:b.filled])
	b.filled = n
	b.scanned = max(b.scanned-past, 0)
}

func (b *frameBuffer) pending() []byte { return b.buf[:b.filled] }

func (b *frameBuffer) capacity() int { return len(b.buf) }
