package delivery

import (
	"fmt"
	"log"

	"github.com/satbridge/satbridge/internal/dvb"
)

// DVBT tunes DVB-T and DVB-T2 multiplexes.
type DVBT struct{}

func (t *DVBT) CapableOf(ds dvb.DeliverySystem) bool {
	return ds == dvb.SysDVBT || ds == dvb.SysDVBT2
}

// terrestrialProperties builds the DVB-T/T2 list. The PLP id (DTV_STREAM_ID)
// is only meaningful for T2 and only sent there.
func terrestrialProperties(t *dvb.TuningParams) []dvb.Property {
	ter := &t.Ter
	props := []dvb.Property{
		prop(dvb.DTVDeliverySystem, uint32(t.DeliverySystem)),
		prop(dvb.DTVFrequency, t.Frequency*1000),
		prop(dvb.DTVBandwidthHz, ter.BandwidthHz),
		prop(dvb.DTVCodeRateHP, uint32(ter.FEC)),
		prop(dvb.DTVCodeRateLP, uint32(ter.FEC)),
		prop(dvb.DTVModulation, uint32(ter.Modulation)),
		prop(dvb.DTVTransmissionMode, uint32(ter.TransmissionMode)),
		prop(dvb.DTVGuardInterval, uint32(ter.GuardInterval)),
		prop(dvb.DTVHierarchy, uint32(ter.Hierarchy)),
	}
	if t.DeliverySystem == dvb.SysDVBT2 && ter.PLPID >= 0 {
		props = append(props, prop(dvb.DTVStreamID, uint32(ter.PLPID)))
	}
	return append(props, dvb.Property{Cmd: dvb.DTVTune})
}

func (t *DVBT) Tune(streamID, fd int, ch *dvb.Channel) error {
	if err := clearProperties(fd); err != nil {
		return fmt.Errorf("%w: clear: %s", dvb.ErrTuneFailed, err)
	}
	if err := dvb.SubmitProperties(fd, terrestrialProperties(&ch.Tuning)); err != nil {
		return fmt.Errorf("%w: property set: %s", dvb.ErrTuneFailed, err)
	}
	log.Printf("delivery: stream=%d tune msys=%s freq_khz=%d bw=%d plp=%d",
		streamID, ch.Tuning.DeliverySystem, ch.Tuning.Frequency, ch.Tuning.Ter.BandwidthHz, ch.Tuning.Ter.PLPID)
	return nil
}
