// Package mpegts holds the outbound packet shapes: an RTP-framed buffer of
// 188-byte TS units, and helpers to pick TS packets apart for accounting.
package mpegts

import "encoding/binary"

const (
	// TSPacketSize is the size of one MPEG-TS packet.
	TSPacketSize = 188
	// SyncByte starts every TS packet.
	SyncByte = 0x47

	// DefaultTSPerBuffer is the usual RTP payload: 7 TS packets (1316 bytes),
	// the most that fit a 1500-byte MTU.
	DefaultTSPerBuffer = 7

	// TimestampStep is the 90 kHz clock advance per 7-packet payload.
	TimestampStep = 3003

	rtpHeaderSize  = 12
	rtpVersion     = 2
	rtpPayloadMP2T = 33
)

// PacketBuffer is one outbound datagram in the making: a 12-byte RTP header
// followed by room for a whole number of TS packets. The producer reads from
// the DVR straight into Free() and Commits what landed; once Full the buffer
// is ready to send. Reset re-arms it with the sequence number and timestamp
// it will carry on its next trip.
type PacketBuffer struct {
	data   []byte
	cursor int
	seq    uint16
	ts     uint32
}

// NewPacketBuffer allocates a buffer for tsPackets TS units (0 means
// DefaultTSPerBuffer) and stamps the static RTP header fields.
func NewPacketBuffer(ssrc uint32, tsPackets int) *PacketBuffer {
	if tsPackets <= 0 {
		tsPackets = DefaultTSPerBuffer
	}
	b := &PacketBuffer{data: make([]byte, rtpHeaderSize+tsPackets*TSPacketSize)}
	b.data[0] = rtpVersion << 6
	b.data[1] = rtpPayloadMP2T
	binary.BigEndian.PutUint32(b.data[8:12], ssrc)
	return b
}

// Reset zeroes the write cursor and stamps the header with the sequence and
// timestamp this buffer will be sent under.
func (b *PacketBuffer) Reset(seq uint16, timestamp uint32) {
	b.cursor = 0
	b.seq = seq
	b.ts = timestamp
	binary.BigEndian.PutUint16(b.data[2:4], seq)
	binary.BigEndian.PutUint32(b.data[4:8], timestamp)
}

// Free returns the unwritten payload region; the device reads into it with a
// single read(2).
func (b *PacketBuffer) Free() []byte {
	return b.data[rtpHeaderSize+b.cursor:]
}

// FreeBytes returns how many payload bytes remain.
func (b *PacketBuffer) FreeBytes() int {
	return len(b.data) - rtpHeaderSize - b.cursor
}

// Commit advances the write cursor by n bytes.
func (b *PacketBuffer) Commit(n int) {
	if n < 0 {
		return
	}
	b.cursor += n
	if b.cursor > len(b.data)-rtpHeaderSize {
		b.cursor = len(b.data) - rtpHeaderSize
	}
}

// Full reports whether the payload region is completely written.
func (b *PacketBuffer) Full() bool {
	return b.cursor == len(b.data)-rtpHeaderSize
}

// Len returns the payload bytes written so far.
func (b *PacketBuffer) Len() int { return b.cursor }

// Payload returns the written payload region.
func (b *PacketBuffer) Payload() []byte {
	return b.data[rtpHeaderSize : rtpHeaderSize+b.cursor]
}

// Datagram returns the RTP header plus written payload, ready for the wire.
func (b *PacketBuffer) Datagram() []byte {
	return b.data[:rtpHeaderSize+b.cursor]
}

// Sequence returns the stamped RTP sequence number.
func (b *PacketBuffer) Sequence() uint16 { return b.seq }

// Timestamp returns the stamped RTP timestamp.
func (b *PacketBuffer) Timestamp() uint32 { return b.ts }

// SSRC returns the stream identifier stamped at allocation.
func (b *PacketBuffer) SSRC() uint32 {
	return binary.BigEndian.Uint32(b.data[8:12])
}
