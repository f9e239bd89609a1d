package stream

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/satbridge/satbridge/internal/dvb"
)

// State is the worker lifecycle state.
type State int

const (
	StatePaused State = iota
	StateRunning
	StatePauseRequested
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	case StatePauseRequested:
		return "pause-requested"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	// pollTimeout bounds the DVR poll; it is also the worst-case latency for
	// the worker to notice a state change.
	pollTimeout = 100 * time.Millisecond

	// pauseTimeout bounds the facade-side wait for the worker's pause ack.
	pauseTimeout = 2500 * time.Millisecond

	// workerNice is the best-effort scheduling priority bump.
	workerNice = -5
)

// worker is the dedicated goroutine pumping one stream: poll the device, read
// into the ring, descramble, drain ready buffers to the sink. It owns the
// ring; the facade touches ring and sink only while the worker is parked.
type worker struct {
	s *Stream

	mu    sync.Mutex
	cond  *sync.Cond
	state State

	done chan struct{}

	packetsSent uint64
	bytesSent   uint64
	overwrites  uint64
}

func newWorker(s *Stream) *worker {
	w := &worker{s: s, state: StatePaused, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// State returns the current lifecycle state.
func (w *worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *worker) run() {
	defer close(w.done)

	// The stream path likes to win the scheduler; bump this thread when the
	// platform lets us.
	runtime.LockOSThread()
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), workerNice); err != nil {
		log.Printf("stream: id=%d setpriority err=%v", w.s.ID, err)
	}

	for {
		w.mu.Lock()
		for w.state == StatePaused {
			w.cond.Wait()
		}
		st := w.state
		if st == StatePauseRequested {
			// Release descrambler state before the ack, so a returned Pause
			// finds it released.
			if d := w.s.desc; d != nil {
				d.Stop(w.s.ID)
			}
			w.state = StatePaused
			w.cond.Broadcast()
			w.mu.Unlock()
			continue
		}
		w.mu.Unlock()
		if st == StateTerminated {
			return
		}
		w.iterate()
	}
}

// iterate is one producer/consumer turn: bounded poll, read, descramble on
// fill, advance, then drain every ready buffer in order.
func (w *worker) iterate() {
	if !w.s.dev.IsDataAvailable(pollTimeout) {
		return
	}
	buf := w.s.ring.WriteBuffer()
	if !w.s.dev.ReadTSPacket(buf) {
		// Partial or empty read; the cursor stands and the next poll resumes.
		return
	}
	if d := w.s.desc; d != nil {
		d.Descramble(w.s.ID, buf)
	}
	before := w.s.ring.Overwrites()
	w.s.ring.Advance()
	if ow := w.s.ring.Overwrites(); ow != before {
		atomic.StoreUint64(&w.overwrites, ow)
		metricRingOverwrites.WithLabelValues(w.s.label).Inc()
		if w.s.overwriteLog.Allow() {
			log.Printf("stream: id=%d ring overwrote unsent buffer total=%d", w.s.ID, ow)
		}
	}

	for {
		b := w.s.ring.PopReady()
		if b == nil {
			break
		}
		w.s.accountPayload(b.Payload())
		if err := w.s.sink.Send(b); err != nil {
			if w.s.sendErrLog.Allow() {
				log.Printf("stream: id=%d send err=%v", w.s.ID, err)
			}
			continue
		}
		atomic.AddUint64(&w.packetsSent, 1)
		atomic.AddUint64(&w.bytesSent, uint64(b.Len()))
		metricPacketsSent.WithLabelValues(w.s.label).Inc()
		metricBytesSent.WithLabelValues(w.s.label).Add(float64(b.Len()))
	}
}

// setRunning transitions to Running (no-op once terminated).
func (w *worker) setRunning() {
	w.mu.Lock()
	if w.state != StateTerminated {
		w.state = StateRunning
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

// requestPause asks the worker to park and waits for the ack within the pause
// budget. On timeout the state is force-marked Paused (the object stays
// consistent) and ErrPauseTimeout is returned.
func (w *worker) requestPause() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateRunning {
		return nil
	}
	w.state = StatePauseRequested
	w.cond.Broadcast()

	deadline := time.Now().Add(pauseTimeout)
	wake := time.AfterFunc(pauseTimeout, w.cond.Broadcast)
	defer wake.Stop()
	for w.state != StatePaused && time.Now().Before(deadline) {
		w.cond.Wait()
	}
	if w.state != StatePaused {
		w.state = StatePaused
		return dvb.ErrPauseTimeout
	}
	return nil
}

// terminate moves to Terminated and joins the goroutine.
func (w *worker) terminate() {
	w.mu.Lock()
	w.state = StateTerminated
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}

func (w *worker) counters() (packets, bytes, overwrites uint64) {
	return atomic.LoadUint64(&w.packetsSent),
		atomic.LoadUint64(&w.bytesSent),
		atomic.LoadUint64(&w.overwrites)
}
