// Package ports hands out the TCP ports trials listen on. Every worker owns
// a block of Stride consecutive ports and walks through it one trial at a
// time, so a port is not reused until the OS has had time to release it.
package ports

import "github.com/domino14/trialrunner/config"

const Stride = config.PortStride

// Allocate returns the port for a worker's trial at the given rotation offset.
// Workers never share a port, whatever their offsets.
func Allocate(base, worker, offset int) int {
	return base + worker*Stride + offset
}

// Rotation tracks a worker's current offset. It is not safe for concurrent
// use; each worker owns its own.
type Rotation struct {
	offset int
}

func (r *Rotation) Offset() int {
	return r.offset
}

// Advance moves to the next offset, wrapping at Stride.
func (r *Rotation) Advance() {
	r.offset = (r.offset + 1) % Stride
}
