package frontend

import (
	"errors"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/satbridge/satbridge/internal/dvb"
	"github.com/satbridge/satbridge/internal/dvb/delivery"
)

// fakeSys is an in-memory stand-in for the kernel DVB surface: it tracks
// every fd ever opened (the fd-leak check), answers the info/status/property
// ioctls, and can be told to fail specific requests.
type fakeSys struct {
	nextFD int
	open   map[int]string
	ioctls map[uintptr]int

	status        uint32
	strength      uint16
	snr           uint16
	failFilter    int // DMX_SET_PES_FILTER failures before success (-1 = always)
	failEnum      bool
	infoType      uint32
	infoCaps      uint32
	enumDelsys    []byte
	failOpenPaths map[string]bool
}

func newFakeSys() *fakeSys {
	return &fakeSys{
		nextFD:     100,
		open:       map[int]string{},
		ioctls:     map[uintptr]int{},
		status:     dvb.StatusHasLock | dvb.StatusHasSignal,
		enumDelsys: []byte{byte(dvb.SysDVBS2), byte(dvb.SysDVBS)},
	}
}

func (fs *fakeSys) ops() sysOps {
	return sysOps{
		open: func(path string, flags int) (int, error) {
			if fs.failOpenPaths[path] {
				return -1, unix.ENOENT
			}
			fd := fs.nextFD
			fs.nextFD++
			fs.open[fd] = path
			return fd, nil
		},
		close: func(fd int) error {
			if _, ok := fs.open[fd]; !ok {
				return unix.EBADF
			}
			delete(fs.open, fd)
			return nil
		},
		ioctl: func(fd int, req uintptr, arg unsafe.Pointer) error {
			fs.ioctls[req]++
			switch req {
			case dvb.FEGetInfo:
				info := (*dvb.FrontendInfo)(arg)
				copy(info.Name[:], "Fake DVB-S2 Tuner")
				info.Type = fs.infoType
				info.Caps = fs.infoCaps
				return nil
			case dvb.FEGetProperty:
				if fs.failEnum {
					return unix.EOPNOTSUPP
				}
				ps := (*dvb.Properties)(arg)
				p := ps.Props
				copy(p.U[:32], fs.enumDelsys)
				n := uint32(len(fs.enumDelsys))
				p.U[32] = byte(n)
				p.U[33] = byte(n >> 8)
				p.U[34] = byte(n >> 16)
				p.U[35] = byte(n >> 24)
				return nil
			case dvb.FEReadStatus:
				*(*uint32)(arg) = fs.status
				return nil
			case dvb.FEReadSignalStrength:
				*(*uint16)(arg) = fs.strength
				return nil
			case dvb.FEReadSNR:
				*(*uint16)(arg) = fs.snr
				return nil
			case dvb.FEReadBER, dvb.FEReadUncorrectedBlocks:
				*(*uint32)(arg) = 0
				return nil
			case dvb.DmxSetPESFilter:
				if fs.failFilter != 0 {
					if fs.failFilter > 0 {
						fs.failFilter--
					}
					return unix.EBUSY
				}
				return nil
			}
			return nil
		},
		ioctlInt: func(fd int, req uintptr, arg uintptr) error {
			fs.ioctls[req]++
			return nil
		},
		poll: func(fds []unix.PollFd, timeout int) (int, error) {
			return 0, nil
		},
		read: func(fd int, p []byte) (int, error) {
			return 0, nil
		},
		sleep: func(d time.Duration) {},
	}
}

// fakeAdapter stands in for a delivery system; it just counts tunes.
type fakeAdapter struct {
	tunes int
	fail  int // failures before success (-1 = always)
}

func (a *fakeAdapter) CapableOf(ds dvb.DeliverySystem) bool { return true }

func (a *fakeAdapter) Tune(streamID, fd int, ch *dvb.Channel) error {
	if a.fail != 0 {
		if a.fail > 0 {
			a.fail--
		}
		return dvb.ErrTuneFailed
	}
	a.tunes++
	return nil
}

func testFrontend(fs *fakeSys) (*Frontend, *fakeAdapter) {
	f := New(dvb.FrontendPaths{
		FE:  "/dev/dvb/adapter0/frontend0",
		DVR: "/dev/dvb/adapter0/dvr0",
		DMX: "/dev/dvb/adapter0/demux0",
	})
	f.sys = fs.ops()
	ad := &fakeAdapter{}
	f.systems = []delivery.System{ad}
	return f, ad
}

func TestSetFrontendInfo(t *testing.T) {
	fs := newFakeSys()
	f := New(dvb.FrontendPaths{FE: "/dev/fe", DVR: "/dev/dvr", DMX: "/dev/dmx"})
	f.sys = fs.ops()
	if err := f.SetFrontendInfo(); err != nil {
		t.Fatal(err)
	}
	if got := f.Name(); got != "Fake DVB-S2 Tuner" {
		t.Errorf("name = %q", got)
	}
	caps := f.Capabilities()
	if caps.DVBS2 != 1 {
		t.Errorf("caps = %+v", caps)
	}
	if !f.CapableOf(dvb.SysDVBS2) || f.CapableOf(dvb.SysDVBT) {
		t.Error("adapter set wrong")
	}
	if len(fs.open) != 0 {
		t.Errorf("probe leaked fds: %v", fs.open)
	}
}

func TestSetFrontendInfoLegacyFallback(t *testing.T) {
	fs := newFakeSys()
	fs.failEnum = true
	fs.infoType = dvb.FETypeQPSK
	fs.infoCaps = dvb.CapCan2GModulation
	f := New(dvb.FrontendPaths{FE: "/dev/fe", DVR: "/dev/dvr", DMX: "/dev/dmx"})
	f.sys = fs.ops()
	if err := f.SetFrontendInfo(); err != nil {
		t.Fatal(err)
	}
	if f.Capabilities().DVBS2 != 1 {
		t.Errorf("fallback caps = %+v", f.Capabilities())
	}
}

func TestSetFrontendInfoOpenFailure(t *testing.T) {
	fs := newFakeSys()
	fs.failOpenPaths = map[string]bool{"/dev/fe": true}
	f := New(dvb.FrontendPaths{FE: "/dev/fe", DVR: "/dev/dvr", DMX: "/dev/dmx"})
	f.sys = fs.ops()
	err := f.SetFrontendInfo()
	if !errors.Is(err, dvb.ErrDeviceUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestUpdateTunesAndReconciles(t *testing.T) {
	fs := newFakeSys()
	f, ad := testFrontend(fs)
	ch := dvb.NewChannel()
	ch.Tuning.DeliverySystem = dvb.SysDVBS2
	ch.Tuning.MarkDirty()
	for _, pid := range []uint16{0, 17, 256, 257} {
		ch.Pids.SetDesired(pid, true)
	}

	if err := f.Update(7, ch); err != nil {
		t.Fatal(err)
	}
	if ad.tunes != 1 {
		t.Errorf("tunes = %d", ad.tunes)
	}
	if ch.Tuning.Dirty() {
		t.Error("tuning dirty should clear on success")
	}
	if ch.Pids.Dirty() {
		t.Error("pid table dirty should clear on success")
	}
	if got := len(ch.Pids.OpenPIDs()); got != 4 {
		t.Fatalf("open filters = %d, want 4", got)
	}
	if fs.ioctls[dvb.DmxSetBufferSize] != 1 {
		t.Errorf("DMX_SET_BUFFER_SIZE calls = %d", fs.ioctls[dvb.DmxSetBufferSize])
	}

	// Drop two PIDs; exactly two handles must remain and two be stopped.
	ch.Pids.SetDesired(17, false)
	ch.Pids.SetDesired(257, false)
	if err := f.Update(7, ch); err != nil {
		t.Fatal(err)
	}
	open := ch.Pids.OpenPIDs()
	if len(open) != 2 || open[0] != 0 || open[1] != 256 {
		t.Fatalf("open filters = %v, want [0 256]", open)
	}
	if fs.ioctls[dvb.DmxStop] != 2 {
		t.Errorf("DMX_STOP calls = %d", fs.ioctls[dvb.DmxStop])
	}
	// Desired set and active filter set coincide.
	for _, pid := range []uint16{0, 17, 256, 257, 8191} {
		e := ch.Pids.Entry(pid)
		if (e.FD != -1) != e.Desired {
			t.Errorf("pid %d: fd=%d desired=%t", pid, e.FD, e.Desired)
		}
	}
}

func TestUpdateIdempotent(t *testing.T) {
	fs := newFakeSys()
	f, ad := testFrontend(fs)
	ch := dvb.NewChannel()
	ch.Tuning.DeliverySystem = dvb.SysDVBS2
	ch.Pids.SetDesired(0, true)
	if err := f.Update(0, ch); err != nil {
		t.Fatal(err)
	}
	tunes := ad.tunes
	ioctls := map[uintptr]int{}
	for k, v := range fs.ioctls {
		ioctls[k] = v
	}
	if err := f.Update(0, ch); err != nil {
		t.Fatal(err)
	}
	if ad.tunes != tunes {
		t.Error("second update must not retune")
	}
	for req, n := range fs.ioctls {
		if req == dvb.FEReadStatus {
			continue
		}
		if n != ioctls[req] {
			t.Errorf("second update issued ioctl 0x%x", req)
		}
	}
}

func TestUpdateLockNotAcquired(t *testing.T) {
	fs := newFakeSys()
	fs.status = dvb.StatusHasSignal // never locks
	f, _ := testFrontend(fs)
	ch := dvb.NewChannel()
	ch.Tuning.DeliverySystem = dvb.SysDVBS2
	ch.Tuning.MarkDirty()
	err := f.Update(0, ch)
	if !errors.Is(err, dvb.ErrLockNotAcquired) {
		t.Fatalf("err = %v", err)
	}
	if !ch.Tuning.Dirty() {
		t.Error("dirty flag must survive failure so the next update reapplies")
	}
	if fs.ioctls[dvb.FEReadStatus] != 4 {
		t.Errorf("lock polls = %d, want 4", fs.ioctls[dvb.FEReadStatus])
	}
}

func TestUpdateRetuneClosesAndReopensDVR(t *testing.T) {
	fs := newFakeSys()
	f, ad := testFrontend(fs)
	ch := dvb.NewChannel()
	ch.Tuning.DeliverySystem = dvb.SysDVBS2
	ch.Pids.SetDesired(100, true)
	if err := f.Update(0, ch); err != nil {
		t.Fatal(err)
	}
	filterFD := ch.Pids.Entry(100).FD

	ch.Tuning.Frequency = 12_188_000
	ch.Tuning.MarkDirty()
	if err := f.Update(0, ch); err != nil {
		t.Fatal(err)
	}
	if ad.tunes != 2 {
		t.Errorf("tunes = %d, want 2", ad.tunes)
	}
	if ch.Pids.Entry(100).FD != filterFD {
		t.Error("retune must not touch PID filters")
	}
	// Old DVR closed, a fresh one open: exactly fe + dvr + one demux remain.
	if len(fs.open) != 3 {
		t.Errorf("open fds = %v", fs.open)
	}
}

func TestFilterSetupExhaustsRetries(t *testing.T) {
	fs := newFakeSys()
	fs.failFilter = -1
	f, _ := testFrontend(fs)
	ch := dvb.NewChannel()
	ch.Tuning.DeliverySystem = dvb.SysDVBS2
	ch.Pids.SetDesired(33, true)
	err := f.Update(0, ch)
	if !errors.Is(err, dvb.ErrFilterSetupFailed) {
		t.Fatalf("err = %v", err)
	}
	if !ch.Pids.Dirty() {
		t.Error("table stays dirty after a failed pass")
	}
	if fs.ioctls[dvb.DmxSetPESFilter] != filterAttempts {
		t.Errorf("filter attempts = %d", fs.ioctls[dvb.DmxSetPESFilter])
	}
	if ch.Pids.Entry(33).FD != -1 {
		t.Error("failed filter must not leave a handle bound")
	}
}

func TestTeardownClosesEveryFD(t *testing.T) {
	fs := newFakeSys()
	f, _ := testFrontend(fs)
	ch := dvb.NewChannel()
	ch.Tuning.DeliverySystem = dvb.SysDVBS2
	for _, pid := range []uint16{0, 17, 256} {
		ch.Pids.SetDesired(pid, true)
	}
	if err := f.Update(0, ch); err != nil {
		t.Fatal(err)
	}
	// Simulate the inconsistent case: an open demux with no desired PID.
	stray := ch.Pids.Entry(4000)
	fd, _ := f.sys.open("/dev/dvb/adapter0/demux0", 0)
	stray.FD = fd

	if err := f.Teardown(0, ch); err != nil {
		t.Fatal(err)
	}
	if len(fs.open) != 0 {
		t.Fatalf("leaked fds: %v", fs.open)
	}
	for _, pid := range []uint16{0, 17, 256, 4000} {
		if e := ch.Pids.Entry(pid); e.FD != -1 || e.PacketCount != 0 {
			t.Errorf("pid %d not reset: %+v", pid, e)
		}
	}
	// Teardown again is a no-op, not a double close.
	if err := f.Teardown(0, ch); err != nil {
		t.Fatal(err)
	}
}

func TestMonitorSignalNormalization(t *testing.T) {
	fs := newFakeSys()
	f, _ := testFrontend(fs)
	ch := dvb.NewChannel()
	ch.Tuning.DeliverySystem = dvb.SysDVBS2
	if err := f.Update(0, ch); err != nil {
		t.Fatal(err)
	}
	fs.strength = 0xffff
	fs.snr = 0x7fff
	snap := f.MonitorSignal(0, false)
	if snap.Strength != 240 {
		t.Errorf("strength = %d, want 240", snap.Strength)
	}
	if snap.SNR != 7 {
		t.Errorf("snr = %d, want 7", snap.SNR)
	}
	if !snap.Locked() {
		t.Error("locked")
	}
}

func TestTuneRetriesExhausted(t *testing.T) {
	fs := newFakeSys()
	f, ad := testFrontend(fs)
	ad.fail = -1
	ch := dvb.NewChannel()
	ch.Tuning.DeliverySystem = dvb.SysDVBS2
	ch.Tuning.MarkDirty()
	err := f.Update(0, ch)
	if !errors.Is(err, dvb.ErrTuneFailed) {
		t.Fatalf("err = %v", err)
	}
	if !ch.Tuning.Dirty() {
		t.Error("dirty survives tune failure")
	}
}
