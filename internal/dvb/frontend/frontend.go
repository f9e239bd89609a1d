// Package frontend drives one Linux DVB frontend end to end: open, tune,
// lock-wait, DVR setup, PID-filter reconciliation, signal monitoring, and
// teardown. A Frontend implements dvb.Device.
package frontend

import (
	"fmt"
	"log"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/satbridge/satbridge/internal/dvb"
	"github.com/satbridge/satbridge/internal/dvb/delivery"
	"github.com/satbridge/satbridge/internal/mpegts"
)

// DVR ring sizes in bytes; the default keeps ~40k TS packets kernel-side.
const (
	DefaultDVRBufferSize = 40 * 188 * 1024
	MinDVRBufferSize     = 10 * 188 * 1024
	MaxDVRBufferSize     = 80 * 188 * 1024
)

// Retry ladders. Each hardware-facing operation gets a bounded budget and
// then fails; dirty flags survive failure so the next update reapplies.
const (
	tuneAttempts   = 4
	tuneBackoff    = 450 * time.Millisecond
	lockAttempts   = 4
	lockInterval   = 150 * time.Millisecond
	dvrAttempts    = 4
	dvrBackoff     = 150 * time.Millisecond
	filterAttempts = 4
	filterBackoff  = 350 * time.Millisecond
)

// Capabilities counts the delivery subsystems a frontend advertises, in the
// buckets of the pool's capability summary. DVB-S has no bucket: it is tuned
// by the DVB-S2 adapter, which is bound only when DVB-S2 is advertised. The
// DVB-C annexes count once.
type Capabilities struct {
	DVBS2 int
	DVBT  int
	DVBT2 int
	DVBC  int
	DVBC2 int
}

// Add accumulates other into c, for pool-level totals.
func (c *Capabilities) Add(other Capabilities) {
	c.DVBS2 += other.DVBS2
	c.DVBT += other.DVBT
	c.DVBT2 += other.DVBT2
	c.DVBC += other.DVBC
	c.DVBC2 += other.DVBC2
}

// String renders the SAT>IP capability summary, e.g. "DVBS2-2,DVBT2-1".
func (c Capabilities) String() string {
	out := ""
	add := func(name string, n int) {
		if n == 0 {
			return
		}
		if out != "" {
			out += ","
		}
		out += fmt.Sprintf("%s-%d", name, n)
	}
	add("DVBS2", c.DVBS2)
	add("DVBT", c.DVBT)
	add("DVBT2", c.DVBT2)
	add("DVBC", c.DVBC)
	add("DVBC2", c.DVBC2)
	return out
}

// sysOps is the thin syscall seam; tests swap the fields for fakes.
type sysOps struct {
	open     func(path string, flags int) (int, error)
	close    func(fd int) error
	ioctl    func(fd int, req uintptr, arg unsafe.Pointer) error
	ioctlInt func(fd int, req uintptr, arg uintptr) error
	poll     func(fds []unix.PollFd, timeout int) (int, error)
	read     func(fd int, p []byte) (int, error)
	sleep    func(d time.Duration)
}

func realSysOps() sysOps {
	return sysOps{
		open: func(path string, flags int) (int, error) {
			return unix.Open(path, flags, 0)
		},
		close:    unix.Close,
		ioctl:    dvb.Ioctl,
		ioctlInt: dvb.IoctlInt,
		poll:     unix.Poll,
		read:     unix.Read,
		sleep:    time.Sleep,
	}
}

// Frontend owns the device-node triple of one tuner plus its open handles,
// tuned flag, signal snapshot, and matching delivery adapters. All state is
// guarded by mu except the DVR fd reads on the streaming path, which snapshot
// the fd under the lock and then block outside it.
type Frontend struct {
	mu sync.Mutex

	pathFE  string
	pathDVR string
	pathDMX string

	fdFE  int
	fdDVR int
	tuned bool

	info          dvb.FrontendInfo
	snap          dvb.SignalSnapshot
	caps          Capabilities
	dvrBufferSize int

	systems []delivery.System

	sys sysOps
}

// New returns a Frontend for the given device-node triple. Call
// SetFrontendInfo before first use; a frontend whose info probe failed must
// be excluded from the pool.
func New(paths dvb.FrontendPaths) *Frontend {
	return &Frontend{
		pathFE:        paths.FE,
		pathDVR:       paths.DVR,
		pathDMX:       paths.DMX,
		fdFE:          -1,
		fdDVR:         -1,
		dvrBufferSize: DefaultDVRBufferSize,
		sys:           realSysOps(),
	}
}

// SetDVRBufferSize clamps and applies the kernel DVR ring size used on the
// next DVR open.
func (f *Frontend) SetDVRBufferSize(n int) {
	if n < MinDVRBufferSize {
		n = MinDVRBufferSize
	}
	if n > MaxDVRBufferSize {
		n = MaxDVRBufferSize
	}
	f.mu.Lock()
	f.dvrBufferSize = n
	f.mu.Unlock()
}

// Name returns the kernel-reported frontend name (after SetFrontendInfo).
func (f *Frontend) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.info.Name[:]
	for i, b := range n {
		if b == 0 {
			return string(n[:i])
		}
	}
	return string(n)
}

// Capabilities returns the delivery-subsystem counts found by SetFrontendInfo.
func (f *Frontend) Capabilities() Capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps
}

// SetFrontendInfo probes the frontend read-only: FE_GET_INFO, then the
// delivery-system enumeration (with the pre-5.5 fallback), then instantiates
// the matching adapters. Failure is fatal for this frontend.
func (f *Frontend) SetFrontendInfo() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fd, err := f.sys.open(f.pathFE, unix.O_RDONLY|unix.O_NONBLOCK)
	if err != nil {
		return fmt.Errorf("%w: open %s: %s", dvb.ErrDeviceUnavailable, f.pathFE, err)
	}
	defer f.sys.close(fd)

	if err := f.sys.ioctl(fd, dvb.FEGetInfo, unsafe.Pointer(&f.info)); err != nil {
		return fmt.Errorf("%w: FE_GET_INFO %s: %s", dvb.ErrDeviceUnavailable, f.pathFE, err)
	}

	delsys, err := f.enumDeliverySystems(fd)
	if err != nil {
		return err
	}
	for _, ds := range delsys {
		switch ds {
		case dvb.SysDVBS2:
			f.caps.DVBS2++
		case dvb.SysDVBT:
			f.caps.DVBT++
		case dvb.SysDVBT2:
			f.caps.DVBT2++
		case dvb.SysDVBCAnnexA, dvb.SysDVBCAnnexB, dvb.SysDVBCAnnexC:
			if f.caps.DVBC == 0 {
				f.caps.DVBC++
			}
		case dvb.SysDVBC2:
			f.caps.DVBC2++
		}
		log.Printf("frontend: %s delsys=%s", f.pathFE, ds)
	}

	if f.caps.DVBS2 > 0 {
		f.systems = append(f.systems, &delivery.DVBS{})
	}
	if f.caps.DVBT > 0 || f.caps.DVBT2 > 0 {
		f.systems = append(f.systems, &delivery.DVBT{})
	}
	if f.caps.DVBC > 0 || f.caps.DVBC2 > 0 {
		f.systems = append(f.systems, &delivery.DVBC{})
	}
	if len(f.systems) == 0 {
		return fmt.Errorf("%w: %s: no usable delivery systems", dvb.ErrDeviceUnavailable, f.pathFE)
	}

	log.Printf("frontend: %s name=%q freq=%d..%dHz srate=%d..%d",
		f.pathFE, f.nameLocked(), f.info.FrequencyMin, f.info.FrequencyMax,
		f.info.SymbolRateMin, f.info.SymbolRateMax)
	return nil
}

func (f *Frontend) nameLocked() string {
	n := f.info.Name[:]
	for i, b := range n {
		if b == 0 {
			return string(n[:i])
		}
	}
	return string(n)
}

// enumDeliverySystems asks the properties API for DTV_ENUM_DELSYS; kernels
// older than DVB API 5.5 get the fe_info.type mapping instead.
func (f *Frontend) enumDeliverySystems(fd int) ([]dvb.DeliverySystem, error) {
	p := dvb.Property{Cmd: dvb.DTVEnumDelsys}
	ps := dvb.Properties{Num: 1, Props: &p}
	if err := f.sys.ioctl(fd, dvb.FEGetProperty, unsafe.Pointer(&ps)); err == nil {
		var out []dvb.DeliverySystem
		for _, b := range p.Buffer() {
			out = append(out, dvb.DeliverySystem(b))
		}
		return out, nil
	}
	log.Printf("frontend: %s DTV_ENUM_DELSYS unsupported, using legacy type mapping", f.pathFE)
	can2G := f.info.Caps&dvb.CapCan2GModulation != 0
	switch f.info.Type {
	case dvb.FETypeQPSK:
		if can2G {
			return []dvb.DeliverySystem{dvb.SysDVBS2, dvb.SysDVBS}, nil
		}
		return []dvb.DeliverySystem{dvb.SysDVBS}, nil
	case dvb.FETypeOFDM:
		if can2G {
			return []dvb.DeliverySystem{dvb.SysDVBT2, dvb.SysDVBT}, nil
		}
		return []dvb.DeliverySystem{dvb.SysDVBT}, nil
	case dvb.FETypeQAM:
		return []dvb.DeliverySystem{dvb.SysDVBCAnnexA}, nil
	case dvb.FETypeATSC:
		if f.info.Caps&(dvb.CapCanQAM64|dvb.CapCanQAM256|dvb.CapCanQAMAuto) != 0 {
			return []dvb.DeliverySystem{dvb.SysDVBCAnnexB}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s: no known delivery systems", dvb.ErrDeviceUnavailable, f.pathFE)
}

// CapableOf reports whether any bound adapter can tune ds.
func (f *Frontend) CapableOf(ds dvb.DeliverySystem) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.systems {
		if s.CapableOf(ds) {
			return true
		}
	}
	return false
}

// Update applies pending channel changes: a retune when the tuning block is
// dirty (closing the DVR first), then the DVR open + buffer sizing, then the
// PID-filter reconcile when the table is dirty. Idempotent when nothing is
// dirty. A failed step leaves the dirty flags set so the next call reapplies.
func (f *Frontend) Update(streamID int, ch *dvb.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch.Tuning.Dirty() {
		f.tuned = false
		f.closeDVRLocked(streamID)
	}

	if err := f.setupAndTuneLocked(streamID, ch); err != nil {
		return err
	}

	if ch.Pids.Dirty() {
		if err := f.updatePIDFiltersLocked(streamID, &ch.Pids); err != nil {
			return err
		}
	}
	return nil
}

func (f *Frontend) setupAndTuneLocked(streamID int, ch *dvb.Channel) error {
	if !f.tuned {
		if f.fdFE == -1 {
			fd, err := f.sys.open(f.pathFE, unix.O_RDWR|unix.O_NONBLOCK)
			if err != nil {
				return fmt.Errorf("%w: open %s: %s", dvb.ErrDeviceUnavailable, f.pathFE, err)
			}
			f.fdFE = fd
			log.Printf("frontend: stream=%d opened %s fd=%d", streamID, f.pathFE, fd)
		}

		if err := f.tuneLocked(streamID, ch); err != nil {
			return err
		}

		log.Printf("frontend: stream=%d waiting on lock", streamID)
		locked := false
		for attempt := 0; attempt < lockAttempts; attempt++ {
			var status uint32
			if err := f.sys.ioctl(f.fdFE, dvb.FEReadStatus, unsafe.Pointer(&status)); err == nil {
				if status&dvb.StatusHasLock != 0 {
					locked = true
					log.Printf("frontend: stream=%d tuned and locked status=0x%02x", streamID, status)
					break
				}
				log.Printf("frontend: stream=%d not locked yet status=0x%02x", streamID, status)
			}
			f.sys.sleep(lockInterval)
		}
		if !locked {
			return fmt.Errorf("%w: stream=%d", dvb.ErrLockNotAcquired, streamID)
		}
		f.tuned = true
		ch.Tuning.ClearDirty()
	}

	if f.fdDVR == -1 && f.tuned {
		var fd int
		var err error
		for attempt := 0; ; attempt++ {
			fd, err = f.sys.open(f.pathDVR, unix.O_RDONLY|unix.O_NONBLOCK)
			if err == nil {
				break
			}
			if attempt+1 >= dvrAttempts {
				return fmt.Errorf("%w: open %s: %s", dvb.ErrDeviceUnavailable, f.pathDVR, err)
			}
			f.sys.sleep(dvrBackoff)
		}
		f.fdDVR = fd
		log.Printf("frontend: stream=%d opened %s fd=%d", streamID, f.pathDVR, fd)
		if err := f.sys.ioctlInt(f.fdDVR, dvb.DmxSetBufferSize, uintptr(f.dvrBufferSize)); err != nil {
			log.Printf("frontend: stream=%d DMX_SET_BUFFER_SIZE size=%d err=%v", streamID, f.dvrBufferSize, err)
		}
	}
	return nil
}

// tuneLocked dispatches to the matching delivery adapter with the tune retry
// ladder.
func (f *Frontend) tuneLocked(streamID int, ch *dvb.Channel) error {
	var sys delivery.System
	for _, s := range f.systems {
		if s.CapableOf(ch.Tuning.DeliverySystem) {
			sys = s
			break
		}
	}
	if sys == nil {
		return fmt.Errorf("%w: stream=%d no adapter for %s", dvb.ErrTuneFailed, streamID, ch.Tuning.DeliverySystem)
	}
	var err error
	for attempt := 0; attempt < tuneAttempts; attempt++ {
		if err = sys.Tune(streamID, f.fdFE, ch); err == nil {
			return nil
		}
		f.sys.sleep(tuneBackoff)
	}
	return fmt.Errorf("stream=%d: %w", streamID, err)
}

// Teardown closes every demux handle still bound in the PID table, resets its
// counters, marks the frontend untuned, and closes the frontend and DVR
// handles. Safe to call repeatedly.
func (f *Frontend) Teardown(streamID int, ch *dvb.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for pid := uint16(0); int(pid) < dvb.MaxPIDs; pid++ {
		e := ch.Pids.Entry(pid)
		if e.Desired {
			log.Printf("frontend: stream=%d remove filter pid=%04d fd=%03d packets=%d",
				streamID, pid, e.FD, e.PacketCount)
			f.resetPIDLocked(&ch.Pids, pid)
		} else if e.FD != -1 {
			log.Printf("frontend: stream=%d !! no PID %d but still open DMX !!", streamID, pid)
			f.resetPIDLocked(&ch.Pids, pid)
		}
	}
	f.tuned = false
	f.closeFELocked(streamID)
	f.closeDVRLocked(streamID)
	return nil
}

func (f *Frontend) closeFELocked(streamID int) {
	if f.fdFE != -1 {
		if err := f.sys.close(f.fdFE); err != nil {
			log.Printf("frontend: stream=%d close fe fd=%d err=%v", streamID, f.fdFE, err)
		}
		f.fdFE = -1
	}
}

func (f *Frontend) closeDVRLocked(streamID int) {
	if f.fdDVR != -1 {
		if err := f.sys.close(f.fdDVR); err != nil {
			log.Printf("frontend: stream=%d close dvr fd=%d err=%v", streamID, f.fdDVR, err)
		}
		f.fdDVR = -1
	}
}

// IsDataAvailable polls the DVR tap with a bounded wait. Runs without the
// frontend lock held during the poll itself.
func (f *Frontend) IsDataAvailable(timeout time.Duration) bool {
	f.mu.Lock()
	fd := f.fdDVR
	f.mu.Unlock()
	if fd == -1 {
		return false
	}
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN | unix.POLLPRI}}
	n, err := f.sys.poll(pfd, int(timeout/time.Millisecond))
	return err == nil && n > 0
}

// ReadTSPacket pulls whole TS units from the DVR into buf's free region and
// reports whether buf filled. A read of zero or an error leaves buf as-is.
func (f *Frontend) ReadTSPacket(buf *mpegts.PacketBuffer) bool {
	f.mu.Lock()
	fd := f.fdDVR
	f.mu.Unlock()
	if fd == -1 {
		return false
	}
	n, err := f.sys.read(fd, buf.Free())
	if err != nil || n <= 0 {
		return false
	}
	buf.Commit(n)
	return buf.Full()
}

// MonitorSignal reads FE_READ_STATUS and, when it succeeds, best-effort reads
// the remaining signal ioctls (each failure reads as zero). Strength is
// normalized to 0..=240 and SNR to 0..=15. Callable concurrently with
// streaming; serialized on the frontend lock.
func (f *Frontend) MonitorSignal(streamID int, showStatus bool) dvb.SignalSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fdFE == -1 {
		return f.snap
	}
	var status uint32
	if err := f.sys.ioctl(f.fdFE, dvb.FEReadStatus, unsafe.Pointer(&status)); err != nil {
		log.Printf("frontend: stream=%d FE_READ_STATUS err=%v", streamID, err)
		return f.snap
	}
	var strength uint16
	if err := f.sys.ioctl(f.fdFE, dvb.FEReadSignalStrength, unsafe.Pointer(&strength)); err != nil {
		strength = 0
	}
	var snr uint16
	if err := f.sys.ioctl(f.fdFE, dvb.FEReadSNR, unsafe.Pointer(&snr)); err != nil {
		snr = 0
	}
	var ber uint32
	if err := f.sys.ioctl(f.fdFE, dvb.FEReadBER, unsafe.Pointer(&ber)); err != nil {
		ber = 0
	}
	var unc uint32
	if err := f.sys.ioctl(f.fdFE, dvb.FEReadUncorrectedBlocks, unsafe.Pointer(&unc)); err != nil {
		unc = 0
	}
	f.snap = dvb.SignalSnapshot{
		Status:            status,
		Strength:          uint32(strength) * 240 / 0xffff,
		SNR:               uint32(snr) * 15 / 0xffff,
		BER:               ber,
		UncorrectedBlocks: unc,
	}
	if showStatus {
		locked := 0
		if f.snap.Locked() {
			locked = 1
		}
		log.Printf("frontend: stream=%d status %02x | signal %3d | snr %3d | ber %d | unc %d | locked %d",
			streamID, f.snap.Status, f.snap.Strength, f.snap.SNR, f.snap.BER, f.snap.UncorrectedBlocks, locked)
	}
	return f.snap
}

// Describe renders the SAT>IP attribute string for the channel using the last
// signal snapshot.
func (f *Frontend) Describe(streamID int, ch *dvb.Channel) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return dvb.DescribeString(streamID, f.snap, ch)
}
