package dvb

import "fmt"

// DescribeString renders the SAT>IP attribute describe line for a tuned (or
// not yet tuned) channel. Frequencies print in MHz with two decimals,
// bandwidth in MHz with three, symbol rates in ksym/s.
func DescribeString(streamID int, snap SignalSnapshot, ch *Channel) string {
	if ch == nil {
		return "NONE"
	}
	freq := float64(ch.Tuning.Frequency) / 1000.0
	lock := 0
	if snap.Locked() {
		lock = 1
	}
	csv := ch.Pids.CSV()

	switch ch.Tuning.DeliverySystem {
	case SysDVBS, SysDVBS2:
		sat := &ch.Tuning.Sat
		return fmt.Sprintf("ver=1.0;src=%d;tuner=%d,%d,%d,%d,%.2f,%s,%s,%s,%s,%s,%d,%s;pids=%s",
			sat.DiseqcSrc,
			streamID+1,
			snap.Strength,
			lock,
			snap.SNR,
			freq,
			sat.Polarization,
			ch.Tuning.DeliverySystem,
			sat.Modulation,
			sat.Pilot,
			sat.Rolloff,
			sat.SymbolRate/1000,
			sat.FEC,
			csv)
	case SysDVBT, SysDVBT2:
		ter := &ch.Tuning.Ter
		return fmt.Sprintf("ver=1.1;tuner=%d,%d,%d,%d,%.2f,%.3f,%s,%s,%s,%s,%s,%d,%d,%d;pids=%s",
			streamID+1,
			snap.Strength,
			lock,
			snap.SNR,
			freq,
			float64(ter.BandwidthHz)/1_000_000.0,
			ch.Tuning.DeliverySystem,
			ter.TransmissionMode,
			ter.Modulation,
			ter.GuardInterval,
			ter.FEC,
			ter.PLPID,
			ter.T2SystemID,
			ter.SISOMISO,
			csv)
	case SysDVBCAnnexA, SysDVBCAnnexB, SysDVBCAnnexC, SysDVBC2:
		cab := &ch.Tuning.Cab
		return fmt.Sprintf("ver=1.2;tuner=%d,%d,%d,%d,%.2f,%.3f,%s,%s,%d,%d,%d,%d,%d;pids=%s",
			streamID+1,
			snap.Strength,
			lock,
			snap.SNR,
			freq,
			float64(cab.BandwidthHz)/1_000_000.0,
			ch.Tuning.DeliverySystem,
			cab.Modulation,
			cab.SymbolRate/1000,
			cab.C2TuningFrequencyType,
			cab.DataSlice,
			cab.PLPID,
			cab.Inversion,
			csv)
	default:
		return "NONE"
	}
}
