package buncher

import (
	"fmt"
)

const (
	// MaxFramesPerPacket is the hard upper bound on the frame-count flush
	// threshold. The buffer is sized for at most this many worst-case
	// frames between flushes; raising the cap without growing the buffer
	// would reintroduce the overflow the sizing rules out.
	MaxFramesPerPacket = 10

	// DefaultLowWater is the default byte low-water mark, well below the
	// 64k datagram limit on the loopback interface.
	DefaultLowWater = 8192
)

// Flusher receives each accumulated bunch. Transport failures are absorbed
// by the implementation and never reported back to the audio path.
type Flusher interface {
	// Flush transmits one bunch. The slice is reused by the caller and is
	// only valid for the duration of the call.
	Flush(bunch []byte)

	// Close releases the underlying transmit resource.
	Close() error
}

// Buncher owns the accumulation buffer for one session. It is driven
// synchronously by the media tap's own thread and performs no locking:
// there is no concurrent access by construction.
type Buncher struct {
	// buf has capacity 2x the low-water mark so that one worst-case frame
	// appended at the tail can never overflow before the threshold check.
	buf        []byte
	position   int
	frameCount int
	frameMax   int
	lowWater   int
	flusher    Flusher
	closed     bool
}

// New creates a buncher flushing to the given Flusher. lowWater is the byte
// threshold that triggers an early flush; it equals the maximum size of a
// single incoming frame. framesPerPacket must be within 1..=MaxFramesPerPacket.
func New(flusher Flusher, lowWater, framesPerPacket int) (*Buncher, error) {
	if flusher == nil {
		return nil, fmt.Errorf("flusher cannot be nil")
	}
	if lowWater < 1 {
		return nil, fmt.Errorf("low-water mark must be positive, got %d", lowWater)
	}
	if framesPerPacket < 1 || framesPerPacket > MaxFramesPerPacket {
		return nil, fmt.Errorf("frames_per_packet must be between 1 and %d, got %d",
			MaxFramesPerPacket, framesPerPacket)
	}

	return &Buncher{
		buf:      make([]byte, 2*lowWater),
		frameMax: framesPerPacket,
		lowWater: lowWater,
		flusher:  flusher,
	}, nil
}

// Init is the tap-attach hook. It establishes no state.
func (b *Buncher) Init() {}

// AcceptFrame appends one audio frame to the bunch and flushes when either
// the byte low-water mark or the frame-count threshold is reached. It
// returns true when a flush happened. Frames arriving after Close are
// dropped.
func (b *Buncher) AcceptFrame(frame []byte) bool {
	if b.closed {
		return false
	}

	copy(b.buf[b.position:], frame)
	b.position += len(frame)
	b.frameCount++

	if b.position >= b.lowWater || b.frameCount >= b.frameMax {
		b.flush()
		return true
	}
	return false
}

// flush hands the bunch to the flusher and unconditionally resets the
// accumulation state, even when the send failed.
func (b *Buncher) flush() {
	b.flusher.Flush(b.buf[:b.position])
	b.position = 0
	b.frameCount = 0
}

// Close flushes any partial bunch still buffered, then releases the
// transmit resource. Calling Close again is a no-op, so the partial bunch
// is sent at most once.
func (b *Buncher) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.position > 0 {
		b.flush()
	}
	return b.flusher.Close()
}

// Position returns the number of bytes accumulated since the last flush
func (b *Buncher) Position() int {
	return b.position
}

// FrameCount returns the number of frames accepted since the last flush
func (b *Buncher) FrameCount() int {
	return b.frameCount
}

// Capacity returns the total size of the accumulation buffer
func (b *Buncher) Capacity() int {
	return len(b.buf)
}

// LowWater returns the byte threshold that triggers an early flush
func (b *Buncher) LowWater() int {
	return b.lowWater
}
