package backend

import (
	"errors"
	"fmt"
)

// ErrPushRingFull is recorded when a command buffer pushes more blocks than its ring holds.
var ErrPushRingFull = errors.New("backend: push constant ring full")

// pushRing emulates push constants. Every draw or dispatch that follows a push gets its own
// aligned copy of the current block; the copies are uploaded in one write before submission
// and selected with a dynamic offset at gpu.PushConstantSet.
type pushRing struct {
	alignment uint32
	blockSize uint32
	capacity  uint32

	block   []byte
	dirty   bool
	staging []byte
	last    uint32
}

func newPushRing(blockSize, alignment, capacity uint32) *pushRing {
	return &pushRing{
		alignment: alignment,
		blockSize: blockSize,
		capacity:  capacity,
		block:     make([]byte, blockSize),
		staging:   make([]byte, 0, capacity),
	}
}

// reset starts a new recording.
func (r *pushRing) reset() {
	clear(r.block)
	r.staging = r.staging[:0]
	r.dirty = true
	r.last = 0
}

// push overwrites part of the current block.
func (r *pushRing) push(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(r.blockSize) {
		return fmt.Errorf("backend: push of %d bytes at %d exceeds the %d byte block", len(data), offset, r.blockSize)
	}
	copy(r.block[offset:], data)
	r.dirty = true
	return nil
}

// offset returns the dynamic offset of the current block, appending a copy when the block
// changed since the last call.
func (r *pushRing) offset() (uint32, error) {
	if !r.dirty {
		return r.last, nil
	}
	start := alignUp(uint32(len(r.staging)), r.alignment)
	if start+r.blockSize > r.capacity {
		return 0, fmt.Errorf("%w: %d bytes", ErrPushRingFull, r.capacity)
	}
	for uint32(len(r.staging)) < start {
		r.staging = append(r.staging, 0)
	}
	r.staging = append(r.staging, r.block...)
	r.last = start
	r.dirty = false
	return start, nil
}

// data returns the bytes to upload at offset 0.
func (r *pushRing) data() []byte {
	return r.staging
}

func alignUp(v, alignment uint32) uint32 {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) / alignment * alignment
}
