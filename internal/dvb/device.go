package dvb

import (
	"errors"
	"time"

	"github.com/satbridge/satbridge/internal/mpegts"
)

// Error kinds surfaced by devices. Wrapped with detail at the failure site;
// callers test with errors.Is.
var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrTuneFailed        = errors.New("tune failed")
	ErrLockNotAcquired   = errors.New("frontend lock not acquired")
	ErrFilterSetupFailed = errors.New("demux filter setup failed")
	ErrPauseTimeout      = errors.New("pause not acknowledged")
)

// SignalSnapshot is the last-read frontend signal state. Strength is
// normalized to 0..=240 and SNR to 0..=15 (SAT>IP ranges).
type SignalSnapshot struct {
	Status            uint32
	Strength          uint32
	SNR               uint32
	BER               uint32
	UncorrectedBlocks uint32
}

// Locked reports whether the snapshot carries FE_HAS_LOCK.
func (s SignalSnapshot) Locked() bool { return s.Status&StatusHasLock != 0 }

// Device is the capability surface a stream drives. The DVB frontend is the
// production implementation; tests and alternative inputs provide their own.
//
// Update applies whatever is pending on ch: a retune when the tuning block is
// dirty, then PID-filter reconciliation when the table is dirty. Teardown
// closes every handle the device opened for ch. Both are idempotent.
type Device interface {
	Update(streamID int, ch *Channel) error
	Teardown(streamID int, ch *Channel) error

	// IsDataAvailable polls the data path for up to the given bound.
	IsDataAvailable(timeout time.Duration) bool

	// ReadTSPacket fills buf's free region with whole 188-byte TS units and
	// reports whether buf is now full. A short or failed read returns false.
	ReadTSPacket(buf *mpegts.PacketBuffer) bool

	// MonitorSignal refreshes and returns the signal snapshot; safe to call
	// concurrently with streaming.
	MonitorSignal(streamID int, showStatus bool) SignalSnapshot

	// Describe renders the SAT>IP descriptor for the current state.
	Describe(streamID int, ch *Channel) string

	CapableOf(ds DeliverySystem) bool
}
