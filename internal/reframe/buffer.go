// SPDX-License-Identifier: MIT
//
// Package reframe turns a stream of variable-length input chunks into
// fixed-size, fixed-hop analysis blocks.
//
// The caller lends a chunk with Hold, pulls as many blocks as are available
// with Block, and returns the chunk with Release. Samples that did not make it
// into a block are copied into an internal carry-over so the next chunk
// continues exactly where the previous one stopped:
//
//	buf.Hold(chunk, n)
//	for buf.Block(block, blockSize, hop) {
//		analyse(block)
//	}
//	buf.Release()
package reframe

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIllegalState    = errors.New("illegal state")
)

// Buffer is the reframing state. It owns only the carry-over tail; the held
// chunk is borrowed between Hold and Release.
type Buffer struct {
	channels int
	capacity int // carry-over frames per channel, maxBlockSize-1

	internal    [][]float32 // carry-over, one row per channel
	numInternal int

	external    [][]float32 // borrowed, nil when nothing is held
	numExternal int
	readIdx     int
}

// New creates a Buffer for blocks of at most maxBlockSize frames.
// latency frames of silence are queued ahead of the first chunk.
func New(channels, maxBlockSize, latency int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("reframe: channels must be positive, got %d: %w", channels, ErrInvalidArgument)
	}
	if maxBlockSize <= 0 {
		return nil, fmt.Errorf("reframe: max block size must be positive, got %d: %w", maxBlockSize, ErrInvalidArgument)
	}
	if latency < 0 || latency >= maxBlockSize {
		return nil, fmt.Errorf("reframe: latency %d outside [0, %d): %w", latency, maxBlockSize, ErrInvalidArgument)
	}

	capacity := maxBlockSize - 1
	backing := make([]float32, channels*capacity)
	internal := make([][]float32, channels)
	for c := range internal {
		internal[c] = backing[c*capacity : (c+1)*capacity : (c+1)*capacity]
	}

	return &Buffer{
		channels:    channels,
		capacity:    capacity,
		internal:    internal,
		numInternal: latency,
	}, nil
}

// Channels returns the channel count fixed at construction.
func (b *Buffer) Channels() int { return b.channels }

// Capacity returns the carry-over capacity in frames.
func (b *Buffer) Capacity() int { return b.capacity }

// Pending returns the number of frames in the carry-over.
func (b *Buffer) Pending() int { return b.numInternal }

// Available returns carry-over plus unread held frames.
func (b *Buffer) Available() int {
	return b.numInternal + b.numExternal - b.readIdx
}

// Holding reports whether a chunk is currently held.
func (b *Buffer) Holding() bool { return b.external != nil }

// Hold lends src to the buffer until Release. Every channel must carry at
// least numFrames samples.
func (b *Buffer) Hold(src [][]float32, numFrames int) error {
	if b.external != nil {
		return fmt.Errorf("reframe: hold while a chunk is already held: %w", ErrIllegalState)
	}
	if numFrames <= 0 {
		return fmt.Errorf("reframe: frame count must be positive, got %d: %w", numFrames, ErrInvalidArgument)
	}
	if err := b.checkChannels(src, numFrames); err != nil {
		return err
	}

	b.external = src
	b.numExternal = numFrames
	b.readIdx = 0
	return nil
}

// Block copies the next blockSize frames into dst and slides the read
// position by advance. It returns false, leaving all state untouched, when
// fewer than blockSize frames are available or the arguments are invalid.
//
// The carry-over is drained first, then the held chunk. advance may be
// smaller than blockSize (overlap) or zero (the same block is returned
// again); it never moves past the frames copied by this call.
func (b *Buffer) Block(dst [][]float32, blockSize, advance int) bool {
	extAvail := b.numExternal - b.readIdx
	if extAvail+b.numInternal < blockSize {
		return false
	}
	if blockSize < 0 || advance < 0 || b.checkChannels(dst, blockSize) != nil {
		return false
	}

	fromInt := min(blockSize, b.numInternal)
	shiftInt := min(advance, fromInt)
	fromExt := min(blockSize-fromInt, extAvail)
	shiftExt := min(advance-shiftInt, fromExt)

	for c := range b.channels {
		out := dst[c]
		copy(out[:fromInt], b.internal[c][:fromInt])
		if fromExt > 0 {
			copy(out[fromInt:fromInt+fromExt], b.external[c][b.readIdx:b.readIdx+fromExt])
		}
		if shiftInt > 0 {
			copy(b.internal[c], b.internal[c][shiftInt:b.numInternal])
		}
	}

	b.numInternal -= shiftInt
	b.readIdx += shiftExt
	return true
}

// Release stores the unread part of the held chunk in the carry-over and
// forgets the chunk. It fails if no chunk is held or the tail does not fit,
// which means blocks larger than the declared maximum were requested.
func (b *Buffer) Release() error {
	if b.external == nil {
		return fmt.Errorf("reframe: release without hold: %w", ErrIllegalState)
	}

	tail := b.numExternal - b.readIdx
	if tail > b.capacity-b.numInternal {
		return fmt.Errorf("reframe: %d leftover frames exceed free carry-over %d: %w",
			tail, b.capacity-b.numInternal, ErrIllegalState)
	}

	for c := range b.channels {
		copy(b.internal[c][b.numInternal:b.numInternal+tail], b.external[c][b.readIdx:b.numExternal])
	}
	b.numInternal += tail
	b.clearExternal()
	return nil
}

// Flush copies the carry-over into dst, empties it and returns the number of
// frames written. An empty carry-over flushes 0 frames and accepts a nil dst.
func (b *Buffer) Flush(dst [][]float32) (int, error) {
	n := b.numInternal
	if n == 0 {
		return 0, nil
	}
	if err := b.checkChannels(dst, n); err != nil {
		return 0, err
	}

	for c := range b.channels {
		copy(dst[c][:n], b.internal[c][:n])
		clear(b.internal[c][:n])
	}
	b.numInternal = 0
	return n, nil
}

// Reset drops the carry-over and any held chunk. No memory is released.
func (b *Buffer) Reset() {
	for c := range b.channels {
		clear(b.internal[c])
	}
	b.numInternal = 0
	b.clearExternal()
}

func (b *Buffer) clearExternal() {
	b.external = nil
	b.numExternal = 0
	b.readIdx = 0
}

func (b *Buffer) checkChannels(bufs [][]float32, frames int) error {
	if bufs == nil {
		return fmt.Errorf("reframe: nil channel buffers: %w", ErrInvalidArgument)
	}
	if len(bufs) < b.channels {
		return fmt.Errorf("reframe: got %d channel buffers, need %d: %w", len(bufs), b.channels, ErrInvalidArgument)
	}
	for c := range b.channels {
		if bufs[c] == nil || len(bufs[c]) < frames {
			return fmt.Errorf("reframe: channel %d holds fewer than %d frames: %w", c, frames, ErrInvalidArgument)
		}
	}
	return nil
}
