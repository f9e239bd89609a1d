package stream

import (
	"encoding/binary"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"github.com/satbridge/satbridge/internal/dvb"
	"github.com/satbridge/satbridge/internal/mpegts"
)

// Stream is the facade the signalling layer drives: it binds a stream id, the
// current client endpoint, the SSRC/sequence/timestamp seeds, the device, the
// tuning/PID channel state, and the worker. One Stream exclusively owns its
// device, ring, worker, and client binding; the descrambler is shared.
type Stream struct {
	ID      int
	Session xid.ID

	label string

	dev  dvb.Device
	desc Descrambler

	// mu serializes channel mutation between the signalling side and the
	// device/accounting readers, and guards the client binding.
	mu         sync.Mutex
	ch         *dvb.Channel
	sink       Sink
	clientAddr string
	started    time.Time
	spawned    bool
	running    bool

	ssrc uint32
	ring *Ring
	w    *worker

	overwriteLog *rate.Limiter
	sendErrLog   *rate.Limiter
}

// New builds a stream around a device. desc may be nil (passthrough).
func New(id int, dev dvb.Device, desc Descrambler) *Stream {
	session := xid.New()
	raw := session.Bytes()
	ssrc := binary.BigEndian.Uint32(raw[8:12]) ^ binary.BigEndian.Uint32(raw[0:4])
	s := &Stream{
		ID:           id,
		Session:      session,
		label:        strconv.Itoa(id),
		dev:          dev,
		desc:         desc,
		ch:           dvb.NewChannel(),
		ssrc:         ssrc,
		overwriteLog: rate.NewLimiter(rate.Every(time.Second), 3),
		sendErrLog:   rate.NewLimiter(rate.Every(time.Second), 3),
	}
	s.ring = NewRing(ssrc, uint16(ssrc), ssrc)
	return s
}

// SSRC returns the stream's RTP identity.
func (s *Stream) SSRC() uint32 { return s.ssrc }

// Channel exposes the tuning/PID state for the pool and tests. Mutate only
// through the facade operations.
func (s *Stream) Channel() *dvb.Channel { return s.ch }

// State returns the worker state (Paused before first Start).
func (s *Stream) State() State {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	if w == nil {
		return StatePaused
	}
	return w.State()
}

// Start binds the client sink and moves the stream to Running: ring indices
// rewind, the write buffer re-arms, and the worker spawns if it is not
// already alive.
func (s *Stream) Start(sink Sink, clientAddr string) error {
	s.mu.Lock()
	w := s.w
	spawned := s.spawned
	s.mu.Unlock()
	if spawned {
		// Rebinding the sink and rewinding the ring need a parked worker.
		if err := w.requestPause(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink != nil && s.sink != sink {
		s.sink.Close()
	}
	s.sink = sink
	s.clientAddr = clientAddr
	s.ring.Reset()
	if !s.spawned {
		s.w = newWorker(s)
		go s.w.run()
		s.spawned = true
	}
	s.w.setRunning()
	if !s.running {
		s.running = true
		metricStreamsActive.Inc()
	}
	s.started = time.Now()
	log.Printf("stream: id=%d session=%s start RTP stream to %s ssrc=%08x", s.ID, s.Session, clientAddr, s.ssrc)
	return nil
}

// Restart resumes a paused stream toward the bound client without retuning.
// Ring indices rewind but the RTP sequence space keeps counting. Called while
// Running it first quiesces the worker so the ring is touched safely.
func (s *Stream) Restart() error {
	s.mu.Lock()
	w := s.w
	spawned := s.spawned
	s.mu.Unlock()
	if !spawned {
		return fmt.Errorf("stream %d: restart before start", s.ID)
	}
	// The worker takes the stream lock per drained buffer, so never wait for
	// its ack while holding it.
	if err := w.requestPause(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Reset()
	w.setRunning()
	if !s.running {
		s.running = true
		metricStreamsActive.Inc()
	}
	log.Printf("stream: id=%d restart RTP stream to %s", s.ID, s.clientAddr)
	return nil
}

// Pause parks the worker. The worker acknowledges within one poll timeout
// plus the in-flight read; after the 2.5 s budget the state is forced and
// ErrPauseTimeout returned, with the object left consistent.
func (s *Stream) Pause() error {
	s.mu.Lock()
	w := s.w
	spawned := s.spawned
	s.mu.Unlock()
	if !spawned {
		return nil
	}
	err := w.requestPause()
	_, bytes, _ := w.counters()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// The worker never acked; release descrambler state on its behalf.
		if s.desc != nil {
			s.desc.Stop(s.ID)
		}
		log.Printf("stream: id=%d pause TIMEOUT (streamed %.3f MBytes)", s.ID, float64(bytes)/(1024.0*1024.0))
	} else {
		log.Printf("stream: id=%d pause RTP stream to %s (streamed %.3f MBytes)", s.ID, s.clientAddr, float64(bytes)/(1024.0*1024.0))
	}
	if s.running {
		s.running = false
		metricStreamsActive.Dec()
	}
	return err
}

// UpdateTuning mutates the tuning block under the stream lock and marks it
// dirty; the next Update call retunes.
func (s *Stream) UpdateTuning(mutate func(*dvb.TuningParams)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.ch.Tuning)
	s.ch.Tuning.MarkDirty()
}

// SetPID adds or removes one PID from the desired set.
func (s *Stream) SetPID(pid uint16, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch.Pids.SetDesired(pid, on)
}

// SetPIDs replaces the desired set wholesale.
func (s *Stream) SetPIDs(pids []uint16) {
	want := make(map[uint16]bool, len(pids))
	for _, p := range pids {
		want[p] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid := 0; pid < dvb.MaxPIDs; pid++ {
		s.ch.Pids.SetDesired(uint16(pid), want[uint16(pid)])
	}
}

// Update pushes pending tuning/PID changes down to the device.
func (s *Stream) Update() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Update(s.ID, s.ch)
}

// Describe renders the SAT>IP attribute string for this stream.
func (s *Stream) Describe() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Describe(s.ID, s.ch)
}

// MonitorSignal refreshes the signal snapshot and the signal gauges. Safe
// alongside a running worker.
func (s *Stream) MonitorSignal(showStatus bool) dvb.SignalSnapshot {
	snap := s.dev.MonitorSignal(s.ID, showStatus)
	metricSignalStrength.WithLabelValues(s.label).Set(float64(snap.Strength))
	metricSignalSNR.WithLabelValues(s.label).Set(float64(snap.SNR))
	return snap
}

// Teardown terminates the worker, tears the device down, and releases the
// client binding. The stream cannot be restarted afterwards.
func (s *Stream) Teardown() error {
	s.mu.Lock()
	w := s.w
	spawned := s.spawned
	s.mu.Unlock()
	if spawned {
		// Join outside the stream lock; the worker needs it to finish its
		// in-flight iteration.
		w.terminate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.desc != nil {
		s.desc.Stop(s.ID)
	}
	err := s.dev.Teardown(s.ID, s.ch)
	if s.sink != nil {
		s.sink.Close()
		s.sink = nil
	}
	if s.running {
		s.running = false
		metricStreamsActive.Dec()
	}
	log.Printf("stream: id=%d session=%s teardown", s.ID, s.Session)
	return err
}

// Accounting is the session summary recorded at teardown time.
type Accounting struct {
	Session    string
	StreamID   int
	Client     string
	Started    time.Time
	Bytes      uint64
	Packets    uint64
	Overwrites uint64
}

// Accounting snapshots the session counters.
func (s *Stream) Accounting() Accounting {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := Accounting{
		Session:  s.Session.String(),
		StreamID: s.ID,
		Client:   s.clientAddr,
		Started:  s.started,
	}
	if s.w != nil {
		a.Packets, a.Bytes, a.Overwrites = s.w.counters()
	}
	return a
}

// accountPayload maintains the per-PID packet and continuity counters for a
// drained buffer. Runs on the worker goroutine under the stream lock.
func (s *Stream) accountPayload(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mpegts.InspectPayload(p, func(pid uint16, cc uint8, hasPayload bool) {
		if hasPayload {
			s.ch.Pids.CountPacket(pid, cc)
		} else if e := s.ch.Pids.Entry(pid); e != nil {
			e.PacketCount++
		}
	})
}
