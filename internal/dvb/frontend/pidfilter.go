package frontend

import (
	"fmt"
	"log"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/satbridge/satbridge/internal/dvb"
)

// updatePIDFiltersLocked converges the kernel demux filters on the desired
// PID set: a fresh demux handle plus PES filter for every newly-desired PID,
// a stop-and-close for every dropped one. Idempotent; a second pass with no
// intervening mutation does nothing. Clears the table's dirty flag only after
// a fully successful pass.
func (f *Frontend) updatePIDFiltersLocked(streamID int, pids *dvb.PidTable) error {
	var added, removed []string
	for pid := uint16(0); int(pid) < dvb.MaxPIDs; pid++ {
		e := pids.Entry(pid)
		switch {
		case e.Desired && e.FD == -1:
			fd, err := f.openPESFilterLocked(pid)
			if err != nil {
				log.Printf("frontend: stream=%d set filter pid=%04d err=%v", streamID, pid, err)
				return err
			}
			e.FD = fd
			added = append(added, strconv.Itoa(int(pid)))
			if e.IsPMT {
				log.Printf("frontend: stream=%d set filter pid=%04d fd=%03d - PMT", streamID, pid, fd)
			}
		case !e.Desired && e.FD != -1:
			removed = append(removed, strconv.Itoa(int(pid)))
			f.resetPIDLocked(pids, pid)
		}
	}
	if len(added) > 0 {
		log.Printf("frontend: stream=%d setting filter for PID: %v", streamID, added)
	}
	if len(removed) > 0 {
		log.Printf("frontend: stream=%d removing filter for PID: %v", streamID, removed)
	}
	pids.ClearDirty()
	return nil
}

// openPESFilterLocked opens a demux handle and installs a TS-tap PES filter
// for pid, retrying the install on the filter ladder before giving up.
func (f *Frontend) openPESFilterLocked(pid uint16) (int, error) {
	fd, err := f.sys.open(f.pathDMX, unix.O_RDWR|unix.O_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("%w: open %s: %s", dvb.ErrFilterSetupFailed, f.pathDMX, err)
	}
	params := dvb.PESFilterParams{
		Pid:     pid,
		Input:   dvb.DmxInFrontend,
		Output:  dvb.DmxOutTSTap,
		PESType: dvb.DmxPESOther,
		Flags:   dvb.DmxImmediateStart,
	}
	for attempt := 0; ; attempt++ {
		if err = f.sys.ioctl(fd, dvb.DmxSetPESFilter, unsafe.Pointer(&params)); err == nil {
			return fd, nil
		}
		if attempt+1 >= filterAttempts {
			break
		}
		f.sys.sleep(filterBackoff)
	}
	f.sys.close(fd)
	return -1, fmt.Errorf("%w: DMX_SET_PES_FILTER pid=%d: %s", dvb.ErrFilterSetupFailed, pid, err)
}

// resetPIDLocked stops and closes pid's demux handle and clears its counters.
func (f *Frontend) resetPIDLocked(pids *dvb.PidTable, pid uint16) {
	e := pids.Entry(pid)
	if e.FD != -1 {
		if err := f.sys.ioctlInt(e.FD, dvb.DmxStop, 0); err != nil {
			log.Printf("frontend: DMX_STOP pid=%04d fd=%03d err=%v", pid, e.FD, err)
		}
		f.sys.close(e.FD)
		e.FD = -1
	}
	pids.ResetCounters(pid)
}
