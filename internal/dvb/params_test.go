package dvb

import "testing"

func TestPidTableDirtyTracking(t *testing.T) {
	ch := NewChannel()
	if ch.Pids.Dirty() {
		t.Fatal("fresh table should be clean")
	}
	ch.Pids.SetDesired(17, true)
	if !ch.Pids.Dirty() {
		t.Fatal("mutation should flag dirty")
	}
	ch.Pids.ClearDirty()
	ch.Pids.SetDesired(17, true) // no-op: already desired
	if ch.Pids.Dirty() {
		t.Fatal("no-op mutation should not flag dirty")
	}
	ch.Pids.SetDesired(17, false)
	if !ch.Pids.Dirty() {
		t.Fatal("removal should flag dirty")
	}
}

func TestPidTableBoundaryPIDs(t *testing.T) {
	ch := NewChannel()
	ch.Pids.SetDesired(0, true)
	ch.Pids.SetDesired(8191, true)
	got := ch.Pids.DesiredPIDs()
	if len(got) != 2 || got[0] != 0 || got[1] != 8191 {
		t.Fatalf("desired = %v, want [0 8191]", got)
	}
	// Out-of-range PIDs are ignored, not a panic.
	ch.Pids.SetDesired(8192, true)
	if len(ch.Pids.DesiredPIDs()) != 2 {
		t.Fatal("out-of-range PID must be ignored")
	}
	if ch.Pids.CSV() != "0,8191" {
		t.Fatalf("csv = %q", ch.Pids.CSV())
	}
}

func TestPidTableCSVEmpty(t *testing.T) {
	ch := NewChannel()
	if ch.Pids.CSV() != "" {
		t.Fatalf("csv of empty set = %q", ch.Pids.CSV())
	}
}

func TestCountPacketContinuity(t *testing.T) {
	ch := NewChannel()
	ch.Pids.CountPacket(100, 0)
	ch.Pids.CountPacket(100, 1)
	ch.Pids.CountPacket(100, 2)
	e := ch.Pids.Entry(100)
	if e.PacketCount != 3 || e.CCErrors != 0 {
		t.Fatalf("count=%d errors=%d, want 3/0", e.PacketCount, e.CCErrors)
	}
	ch.Pids.CountPacket(100, 2) // duplicate: legal, not an error
	if e.CCErrors != 0 {
		t.Fatalf("duplicate cc counted as error")
	}
	ch.Pids.CountPacket(100, 5) // gap
	if e.CCErrors != 1 {
		t.Fatalf("errors=%d, want 1", e.CCErrors)
	}
	// CC wraps 15 -> 0 without an error.
	ch.Pids.ResetCounters(100)
	ch.Pids.CountPacket(100, 15)
	ch.Pids.CountPacket(100, 0)
	if e.CCErrors != 0 {
		t.Fatalf("wrap counted as error")
	}
}

func TestTuningDirtyFlags(t *testing.T) {
	var p TuningParams
	if p.Dirty() {
		t.Fatal("zero params should be clean")
	}
	p.MarkDirty()
	if !p.Dirty() {
		t.Fatal("MarkDirty")
	}
	p.ClearDirty()
	if p.Dirty() {
		t.Fatal("ClearDirty")
	}
}
