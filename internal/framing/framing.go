package framing

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/randutil"
	"github.com/pion/rtp"
)

// RTP wire format constants
const (
	// RTPHeaderSize is the fixed RTP header length produced by this service
	// (version 2, no padding, no extension, no CSRC list).
	RTPHeaderSize = 12

	// RTPVersion is the only RTP version emitted
	RTPVersion = 2

	// PayloadTypeL16 is the dynamic payload type carried in byte 1 of the
	// header (no marker bit, so the byte on the wire is 0x60)
	PayloadTypeL16 = 96
)

// Mode selects the wire format for a session. It is chosen once at session
// creation and never changes afterwards.
type Mode uint8

const (
	// ModePlain transmits the accumulated bunch verbatim, in the host's
	// native sample byte order.
	ModePlain Mode = iota

	// ModeRTPL16 wraps the bunch in an RTP header and converts the 16-bit
	// samples to network byte order.
	ModeRTPL16
)

// String returns a human-readable representation of the framing mode
func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeRTPL16:
		return "rtp-l16"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Framer turns an accumulated audio bunch into a single outbound datagram.
// Implementations own whatever running state the wire format requires.
type Framer interface {
	// Frame builds the datagram for one bunch. The returned slice is only
	// valid until the next call.
	Frame(payload []byte) ([]byte, error)

	// Mode reports the wire format this framer produces.
	Mode() Mode
}

// PlainFramer passes bunches through unchanged. It carries no state.
type PlainFramer struct{}

// NewPlainFramer creates a framer for raw passthrough transmission
func NewPlainFramer() *PlainFramer {
	return &PlainFramer{}
}

// Frame returns the payload as-is, native sample byte order
func (f *PlainFramer) Frame(payload []byte) ([]byte, error) {
	return payload, nil
}

// Mode returns ModePlain
func (f *PlainFramer) Mode() Mode {
	return ModePlain
}

// RTPFramer wraps bunches in an RTP header. The sequence number advances by
// one per framed bunch and the timestamp advances by the payload byte count,
// whether or not the subsequent send succeeds. Both start at random values.
type RTPFramer struct {
	ssrc      uint32
	sequencer rtp.Sequencer
	timestamp uint32
	lastSeq   uint16
}

// NewRTPFramer creates an RTP framer for the given stream identifier with
// randomized initial sequence number and timestamp
func NewRTPFramer(ssrc uint32) *RTPFramer {
	return &RTPFramer{
		ssrc:      ssrc,
		sequencer: rtp.NewRandomSequencer(),
		timestamp: randutil.NewMathRandomGenerator().Uint32(),
	}
}

// NewRTPFramerWithState creates an RTP framer with pinned initial sequence
// number and timestamp. The first framed bunch carries exactly seq and ts.
func NewRTPFramerWithState(ssrc uint32, seq uint16, ts uint32) *RTPFramer {
	return &RTPFramer{
		ssrc:      ssrc,
		sequencer: rtp.NewFixedSequencer(seq),
		timestamp: ts,
	}
}

// Frame builds a 12-byte RTP header followed by the payload converted to
// L16 network byte order
func (f *RTPFramer) Frame(payload []byte) ([]byte, error) {
	packet := rtp.Packet{
		Header: rtp.Header{
			Version:        RTPVersion,
			PayloadType:    PayloadTypeL16,
			SequenceNumber: f.sequencer.NextSequenceNumber(),
			Timestamp:      f.timestamp,
			SSRC:           f.ssrc,
		},
		Payload: toNetworkOrder(payload),
	}

	out, err := packet.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
	}

	f.lastSeq = packet.Header.SequenceNumber
	// Timestamp units are payload bytes, not samples. The receiver for this
	// stream depends on that, so it must not be "fixed" to sample counts.
	f.timestamp += uint32(len(payload))

	return out, nil
}

// Mode returns ModeRTPL16
func (f *RTPFramer) Mode() Mode {
	return ModeRTPL16
}

// SSRC returns the fixed stream identifier carried in every header
func (f *RTPFramer) SSRC() uint32 {
	return f.ssrc
}

// LastSequenceNumber returns the sequence number of the most recently
// framed bunch
func (f *RTPFramer) LastSequenceNumber() uint16 {
	return f.lastSeq
}

// Timestamp returns the timestamp the next framed bunch will carry
func (f *RTPFramer) Timestamp() uint32 {
	return f.timestamp
}

// hostLittleEndian is true when 16-bit samples accumulate in little-endian
// layout and need swapping before they go on the wire.
var hostLittleEndian = func() bool {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 0x0102)
	return probe[0] == 0x02
}()

// toNetworkOrder converts 16-bit samples from host order to network (big
// endian) order. On big-endian hosts the payload is already in wire order
// and is returned unchanged.
func toNetworkOrder(payload []byte) []byte {
	if !hostLittleEndian {
		return payload
	}
	swapped := make([]byte, len(payload))
	pairs := len(payload) / 2 * 2
	for i := 0; i < pairs; i += 2 {
		swapped[i] = payload[i+1]
		swapped[i+1] = payload[i]
	}
	if pairs < len(payload) {
		swapped[pairs] = payload[pairs]
	}
	return swapped
}
