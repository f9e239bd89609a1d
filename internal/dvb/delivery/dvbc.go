package delivery

import (
	"fmt"
	"log"

	"github.com/satbridge/satbridge/internal/dvb"
)

// DVBC tunes DVB-C (annex A/B/C) and DVB-C2 multiplexes.
type DVBC struct{}

func (c *DVBC) CapableOf(ds dvb.DeliverySystem) bool {
	switch ds {
	case dvb.SysDVBCAnnexA, dvb.SysDVBCAnnexB, dvb.SysDVBCAnnexC, dvb.SysDVBC2:
		return true
	}
	return false
}

func cableProperties(t *dvb.TuningParams) []dvb.Property {
	cab := &t.Cab
	props := []dvb.Property{
		prop(dvb.DTVDeliverySystem, uint32(t.DeliverySystem)),
		prop(dvb.DTVFrequency, t.Frequency*1000),
		prop(dvb.DTVModulation, uint32(cab.Modulation)),
		prop(dvb.DTVSymbolRate, cab.SymbolRate),
		prop(dvb.DTVInnerFEC, uint32(cab.FEC)),
		prop(dvb.DTVInversion, uint32(cab.Inversion)),
	}
	if t.DeliverySystem == dvb.SysDVBC2 && cab.PLPID >= 0 {
		props = append(props, prop(dvb.DTVStreamID, uint32(cab.PLPID)))
	}
	return append(props, dvb.Property{Cmd: dvb.DTVTune})
}

func (c *DVBC) Tune(streamID, fd int, ch *dvb.Channel) error {
	if err := clearProperties(fd); err != nil {
		return fmt.Errorf("%w: clear: %s", dvb.ErrTuneFailed, err)
	}
	if err := dvb.SubmitProperties(fd, cableProperties(&ch.Tuning)); err != nil {
		return fmt.Errorf("%w: property set: %s", dvb.ErrTuneFailed, err)
	}
	log.Printf("delivery: stream=%d tune msys=%s freq_khz=%d srate=%d",
		streamID, ch.Tuning.DeliverySystem, ch.Tuning.Frequency, ch.Tuning.Cab.SymbolRate)
	return nil
}
