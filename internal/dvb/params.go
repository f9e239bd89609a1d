package dvb

import (
	"strconv"
	"strings"
)

// MaxPIDs is the number of PID slots in a transport stream (13-bit PID space).
const MaxPIDs = 8192

// LNB describes the local-oscillator plan of a satellite downconverter, in kHz.
// A zero SwitchLOF or LOFHigh means the LNB has no high band.
type LNB struct {
	LOFLow    uint32
	LOFHigh   uint32
	SwitchLOF uint32
}

// UniversalLNB is the common Ku-band plan.
var UniversalLNB = LNB{LOFLow: 9_750_000, LOFHigh: 10_600_000, SwitchLOF: 11_700_000}

// Satellite carries the DVB-S/S2 leg of TuningParams.
type Satellite struct {
	Polarization Polarization
	SymbolRate   uint32 // sym/s
	FEC          CodeRate
	Modulation   Modulation
	Rolloff      Rolloff
	Pilot        Pilot
	DiseqcSrc    int
	LNB          LNB
}

// Terrestrial carries the DVB-T/T2 leg of TuningParams.
type Terrestrial struct {
	BandwidthHz      uint32
	TransmissionMode TransmitMode
	GuardInterval    GuardInterval
	FEC              CodeRate
	Modulation       Modulation
	Hierarchy        Hierarchy
	PLPID            int
	T2SystemID       int
	SISOMISO         int
}

// Cable carries the DVB-C/C2 leg of TuningParams.
type Cable struct {
	BandwidthHz           uint32
	SymbolRate            uint32 // sym/s
	Modulation            Modulation
	FEC                   CodeRate
	C2TuningFrequencyType int
	DataSlice             int
	PLPID                 int
	Inversion             Inversion
}

// TuningParams is the tuning block for one multiplex, discriminated by
// DeliverySystem; only the matching leg is meaningful. Frequency is in kHz,
// the DVB API's satellite unit; terrestrial/cable adapters scale to Hz.
//
// The dirty flag tracks whether the block changed since the last successful
// tune; the frontend clears it when the change has been applied.
type TuningParams struct {
	DeliverySystem DeliverySystem
	Frequency      uint32
	Sat            Satellite
	Ter            Terrestrial
	Cab            Cable

	dirty bool
}

// MarkDirty records a mutation; the next frontend update retunes.
func (t *TuningParams) MarkDirty() { t.dirty = true }

// Dirty reports whether the block changed since the last applied tune.
func (t *TuningParams) Dirty() bool { return t.dirty }

// ClearDirty is called by the frontend once the parameters are applied.
func (t *TuningParams) ClearDirty() { t.dirty = false }

// PidEntry is one slot of the PID table. FD is the demux filter handle
// (-1 when closed); CC is the last seen continuity counter (0x80 = unseen).
type PidEntry struct {
	Desired     bool
	IsPMT       bool
	FD          int
	PacketCount uint64
	CC          uint8
	CCErrors    uint32
}

// PidTable maps every possible PID to its filter state. Mutations of the
// desired set flag the table dirty; the reconciler clears the flag once the
// kernel filters converged.
type PidTable struct {
	entries [MaxPIDs]PidEntry
	dirty   bool
}

// Channel bundles the tuning block and PID table a stream hands to its device.
type Channel struct {
	Tuning TuningParams
	Pids   PidTable
}

// NewChannel returns a Channel with all filter handles closed.
func NewChannel() *Channel {
	c := &Channel{}
	for i := range c.Pids.entries {
		c.Pids.entries[i].FD = -1
		c.Pids.entries[i].CC = 0x80
	}
	return c
}

// SetDesired marks pid as wanted (or not) and flags the table dirty when the
// desired set actually changed. Out-of-range PIDs are ignored.
func (p *PidTable) SetDesired(pid uint16, on bool) {
	if int(pid) >= MaxPIDs {
		return
	}
	if p.entries[pid].Desired != on {
		p.entries[pid].Desired = on
		p.dirty = true
	}
}

// SetPMT marks pid as carrying a PMT section.
func (p *PidTable) SetPMT(pid uint16, on bool) {
	if int(pid) < MaxPIDs {
		p.entries[pid].IsPMT = on
	}
}

// Desired reports whether pid is in the desired set.
func (p *PidTable) Desired(pid uint16) bool {
	return int(pid) < MaxPIDs && p.entries[pid].Desired
}

// Entry returns a pointer to the slot for pid, or nil when out of range.
func (p *PidTable) Entry(pid uint16) *PidEntry {
	if int(pid) >= MaxPIDs {
		return nil
	}
	return &p.entries[pid]
}

// Dirty reports whether the desired set changed since the last reconcile.
func (p *PidTable) Dirty() bool { return p.dirty }

// MarkDirty forces a reconcile on the next update.
func (p *PidTable) MarkDirty() { p.dirty = true }

// ClearDirty is called by the reconciler after a converged pass.
func (p *PidTable) ClearDirty() { p.dirty = false }

// ResetCounters clears the per-PID accounting for pid and forgets its CC.
func (p *PidTable) ResetCounters(pid uint16) {
	if int(pid) >= MaxPIDs {
		return
	}
	e := &p.entries[pid]
	e.PacketCount = 0
	e.CC = 0x80
	e.CCErrors = 0
}

// CountPacket accounts one outbound TS packet for pid, tracking continuity
// counter gaps. Duplicate CCs (legal for non-payload repeats) are not errors.
func (p *PidTable) CountPacket(pid uint16, cc uint8) {
	if int(pid) >= MaxPIDs {
		return
	}
	e := &p.entries[pid]
	e.PacketCount++
	if e.CC != 0x80 && cc != e.CC && cc != (e.CC+1)&0x0f {
		e.CCErrors++
	}
	e.CC = cc
}

// DesiredPIDs returns the desired set in ascending order.
func (p *PidTable) DesiredPIDs() []uint16 {
	var out []uint16
	for i := range p.entries {
		if p.entries[i].Desired {
			out = append(out, uint16(i))
		}
	}
	return out
}

// OpenPIDs returns every PID with an open demux handle, in ascending order.
func (p *PidTable) OpenPIDs() []uint16 {
	var out []uint16
	for i := range p.entries {
		if p.entries[i].FD != -1 {
			out = append(out, uint16(i))
		}
	}
	return out
}

// CSV renders the desired set the SAT>IP way: "0,17,256" (empty when none).
func (p *PidTable) CSV() string {
	pids := p.DesiredPIDs()
	if len(pids) == 0 {
		return ""
	}
	var b strings.Builder
	for i, pid := range pids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(pid)))
	}
	return b.String()
}
