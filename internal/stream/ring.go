// Package stream owns the per-stream pipeline above the device: the ring of
// outbound RTP/TS buffers, the worker that pumps it, the UDP sink, and the
// facade the signalling layer drives.
package stream

import "github.com/satbridge/satbridge/internal/mpegts"

// MaxBuf is the ring depth. 32 buffers of 7 TS packets keeps roughly 42 KB
// in flight, a few milliseconds at transponder line rate.
const MaxBuf = 32

// Ring is the fixed ring of packet buffers between the DVR reader and the
// sink. It is accessed by the owning worker goroutine (the sink runs on the
// same goroutine) and by the facade only while the worker is parked, so it
// carries no locking.
//
// The producer fills bufs[writeIndex]; Advance stamps the next buffer and
// moves on, overwriting the oldest unsent buffer when the consumer has been
// lapped — the designed best-effort loss point, counted in overwrites.
// The consumer pops ready buffers in order; readIndex never passes writeIndex.
type Ring struct {
	bufs       [MaxBuf]*mpegts.PacketBuffer
	writeIndex int
	readIndex  int

	nextSeq    uint16
	nextTS     uint32
	overwrites uint64
}

// NewRing allocates the buffers and arms the first write buffer with the
// given sequence/timestamp seeds.
func NewRing(ssrc uint32, seq uint16, timestamp uint32) *Ring {
	r := &Ring{nextSeq: seq, nextTS: timestamp}
	for i := range r.bufs {
		r.bufs[i] = mpegts.NewPacketBuffer(ssrc, mpegts.DefaultTSPerBuffer)
	}
	r.bufs[0].Reset(r.nextSeq, r.nextTS)
	return r
}

// WriteBuffer returns the buffer the producer is currently filling.
func (r *Ring) WriteBuffer() *mpegts.PacketBuffer { return r.bufs[r.writeIndex] }

// Advance moves the producer to the next buffer, re-arming it with the next
// sequence number and timestamp. If that laps the consumer, the oldest unsent
// buffer is sacrificed and counted.
func (r *Ring) Advance() {
	r.nextSeq++
	r.nextTS += mpegts.TimestampStep
	r.writeIndex = (r.writeIndex + 1) % MaxBuf
	if r.writeIndex == r.readIndex {
		r.readIndex = (r.readIndex + 1) % MaxBuf
		r.overwrites++
	}
	r.bufs[r.writeIndex].Reset(r.nextSeq, r.nextTS)
}

// PopReady returns the next ready buffer in order, or nil when the consumer
// has caught the producer or the next buffer is still being filled.
func (r *Ring) PopReady() *mpegts.PacketBuffer {
	if r.readIndex == r.writeIndex {
		return nil
	}
	b := r.bufs[r.readIndex]
	if !b.Full() {
		return nil
	}
	r.readIndex = (r.readIndex + 1) % MaxBuf
	return b
}

// Reset rewinds both indices and re-arms the write buffer. Sequence numbers
// keep counting from where they were; a retune must not reset the RTP
// sequence space.
func (r *Ring) Reset() {
	r.writeIndex = 0
	r.readIndex = 0
	r.bufs[0].Reset(r.nextSeq, r.nextTS)
}

// Overwrites returns how many unsent buffers were sacrificed to a lapping
// producer.
func (r *Ring) Overwrites() uint64 { return r.overwrites }

// Depth returns how many buffers sit between consumer and producer.
func (r *Ring) Depth() int {
	return (r.writeIndex - r.readIndex + MaxBuf) % MaxBuf
}
