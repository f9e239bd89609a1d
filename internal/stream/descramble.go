package stream

import "github.com/satbridge/satbridge/internal/mpegts"

// Descrambler is the shared decrypt collaborator. Implementations are
// responsible for their own thread-safety; a nil Descrambler means the stream
// degrades to passthrough.
type Descrambler interface {
	// Descramble processes one full buffer in place before it is sent.
	Descramble(streamID int, b *mpegts.PacketBuffer)
	// Stop releases any per-stream descrambling state (keys, slots).
	Stop(streamID int)
}
