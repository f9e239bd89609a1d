package dvb

import (
	"strconv"
	"strings"
	"testing"
)

func satChannel() *Channel {
	ch := NewChannel()
	ch.Tuning = TuningParams{
		DeliverySystem: SysDVBS2,
		Frequency:      11_493_750,
		Sat: Satellite{
			Polarization: PolVertical,
			SymbolRate:   22_000_000,
			FEC:          FEC34,
			Modulation:   ModPSK8,
			Rolloff:      Rolloff35,
			Pilot:        PilotAuto,
			DiseqcSrc:    0,
			LNB:          UniversalLNB,
		},
	}
	return ch
}

func TestDescribeSatellite(t *testing.T) {
	ch := satChannel()
	snap := SignalSnapshot{Status: StatusHasLock | StatusHasSignal, Strength: 200, SNR: 12}
	got := DescribeString(0, snap, ch)
	want := "ver=1.0;src=0;tuner=1,200,1,12,11493.75,v,dvbs2,8psk,auto,0.35,22000,3/4;pids="
	if got != want {
		t.Fatalf("describe:\n got %q\nwant %q", got, want)
	}
}

func TestDescribeSatelliteWithPIDs(t *testing.T) {
	ch := satChannel()
	for _, pid := range []uint16{0, 17, 256} {
		ch.Pids.SetDesired(pid, true)
	}
	got := DescribeString(0, SignalSnapshot{}, ch)
	if !strings.HasSuffix(got, ";pids=0,17,256") {
		t.Fatalf("pids suffix: %q", got)
	}
	if !strings.Contains(got, ",0,") { // lock=0 without HAS_LOCK
		t.Fatalf("lock should be 0: %q", got)
	}
}

func TestDescribeNotTuned(t *testing.T) {
	if got := DescribeString(0, SignalSnapshot{}, NewChannel()); got != "NONE" {
		t.Fatalf("undefined delsys: %q", got)
	}
	if got := DescribeString(0, SignalSnapshot{}, nil); got != "NONE" {
		t.Fatalf("nil channel: %q", got)
	}
}

func TestDescribeTerrestrial(t *testing.T) {
	ch := NewChannel()
	ch.Tuning = TuningParams{
		DeliverySystem: SysDVBT2,
		Frequency:      506_000, // kHz
		Ter: Terrestrial{
			BandwidthHz:      8_000_000,
			TransmissionMode: TransmissionMode32K,
			GuardInterval:    GuardInterval1128,
			FEC:              FEC23,
			Modulation:       ModQAM256,
			PLPID:            1,
			T2SystemID:       4369,
			SISOMISO:         0,
		},
	}
	got := DescribeString(2, SignalSnapshot{Strength: 100, SNR: 9}, ch)
	want := "ver=1.1;tuner=3,100,0,9,506.00,8.000,dvbt2,32k,256qam,1/128,2/3,1,4369,0;pids="
	if got != want {
		t.Fatalf("describe:\n got %q\nwant %q", got, want)
	}
}

func TestDescribeCable(t *testing.T) {
	ch := NewChannel()
	ch.Tuning = TuningParams{
		DeliverySystem: SysDVBCAnnexA,
		Frequency:      346_000,
		Cab: Cable{
			BandwidthHz: 8_000_000,
			SymbolRate:  6_900_000,
			Modulation:  ModQAM64,
			Inversion:   InversionOff,
		},
	}
	got := DescribeString(0, SignalSnapshot{}, ch)
	want := "ver=1.2;tuner=1,0,0,0,346.00,8.000,dvbc,64qam,6900,0,0,0,0;pids="
	if got != want {
		t.Fatalf("describe:\n got %q\nwant %q", got, want)
	}
}

// parseSatDescribe recovers the tuning fields from a ver=1.0 describe line.
func parseSatDescribe(t *testing.T, s string) (freqMHz float64, pol Polarization, srateKsym int, fec CodeRate, mod Modulation, ro Rolloff, pilot Pilot, ds DeliverySystem) {
	t.Helper()
	parts := strings.Split(s, ";")
	if len(parts) != 4 || !strings.HasPrefix(parts[0], "ver=1.0") || !strings.HasPrefix(parts[1], "src=") {
		t.Fatalf("bad describe %q", s)
	}
	tuner := strings.TrimPrefix(parts[2], "tuner=")
	f := strings.Split(tuner, ",")
	if len(f) != 12 {
		t.Fatalf("tuner fields = %d in %q", len(f), s)
	}
	var err error
	if freqMHz, err = strconv.ParseFloat(f[4], 64); err != nil {
		t.Fatal(err)
	}
	if pol, err = ParsePolarization(f[5]); err != nil {
		t.Fatal(err)
	}
	if ds, err = ParseDeliverySystem(f[6]); err != nil {
		t.Fatal(err)
	}
	if mod, err = ParseModulation(f[7]); err != nil {
		t.Fatal(err)
	}
	if pilot, err = ParsePilot(f[8]); err != nil {
		t.Fatal(err)
	}
	if ro, err = ParseRolloff(f[9]); err != nil {
		t.Fatal(err)
	}
	if srateKsym, err = strconv.Atoi(f[10]); err != nil {
		t.Fatal(err)
	}
	if fec, err = ParseCodeRate(f[11]); err != nil {
		t.Fatal(err)
	}
	return
}

func TestDescribeRoundTrip(t *testing.T) {
	ch := satChannel()
	desc := DescribeString(0, SignalSnapshot{}, ch)
	freq, pol, srate, fec, mod, ro, pilot, ds := parseSatDescribe(t, desc)

	if d := freq - float64(ch.Tuning.Frequency)/1000.0; d > 0.01 || d < -0.01 {
		t.Errorf("freq: %f", freq)
	}
	if pol != ch.Tuning.Sat.Polarization {
		t.Errorf("pol: %v", pol)
	}
	if d := srate - int(ch.Tuning.Sat.SymbolRate/1000); d > 1 || d < -1 {
		t.Errorf("srate: %d", srate)
	}
	if fec != ch.Tuning.Sat.FEC {
		t.Errorf("fec: %v", fec)
	}
	if mod != ch.Tuning.Sat.Modulation {
		t.Errorf("mod: %v", mod)
	}
	if ro != ch.Tuning.Sat.Rolloff {
		t.Errorf("rolloff: %v", ro)
	}
	if pilot != ch.Tuning.Sat.Pilot {
		t.Errorf("pilot: %v", pilot)
	}
	if ds != ch.Tuning.DeliverySystem {
		t.Errorf("delsys: %v", ds)
	}
}
