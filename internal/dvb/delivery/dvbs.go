package delivery

import (
	"fmt"
	"log"
	"time"
	"unsafe"

	"github.com/satbridge/satbridge/internal/dvb"
)

// DVBS tunes DVB-S and DVB-S2 transponders, running the DiSEqC switch
// protocol before the property list. DiseqcWait is the post-master-command
// settle the switch asks for (0 for simple setups).
type DVBS struct {
	DiseqcWait time.Duration
}

func (s *DVBS) CapableOf(ds dvb.DeliverySystem) bool {
	return ds == dvb.SysDVBS || ds == dvb.SysDVBS2
}

// intermediateFrequency maps the transponder frequency (kHz) through the LNB
// plan: high band when a switchover LOF exists and the frequency is at or
// above it; the inversion case covers C-band LNBs whose LOF sits above the
// downlink.
func intermediateFrequency(freq uint32, lnb dvb.LNB) (ifreq uint32, hiband bool) {
	if lnb.SwitchLOF != 0 && lnb.LOFHigh != 0 && freq >= lnb.SwitchLOF {
		return freq - lnb.LOFHigh, true
	}
	if freq < lnb.LOFLow {
		return lnb.LOFLow - freq, false
	}
	return freq - lnb.LOFLow, false
}

// diseqcSequence computes the committed-switch command for a source index,
// band, and polarization. The data byte sets option/position/polarization/band
// bits in the low nibble: 0xf0 | (src*4)&0x0f | band | (vertical ? 0 : 2),
// where V and circular R count as vertical.
func diseqcSequence(src int, hiband bool, pol dvb.Polarization) (cmd dvb.DiseqcMasterCmd, voltage, tone, burst uint32) {
	data := byte(0xf0) | byte((src*4)&0x0f)
	if hiband {
		data |= 1
	}
	vertical := pol == dvb.PolVertical || pol == dvb.PolCircularRight
	if !vertical {
		data |= 2
	}
	cmd = dvb.DiseqcMasterCmd{Msg: [6]byte{0xe0, 0x10, 0x38, data, 0x00, 0x00}, Len: 4}
	voltage = dvb.SecVoltage18
	if vertical {
		voltage = dvb.SecVoltage13
	}
	tone = dvb.SecToneOff
	if hiband {
		tone = dvb.SecToneOn
	}
	burst = dvb.SecMiniA
	if (src/4)%2 == 1 {
		burst = dvb.SecMiniB
	}
	return cmd, voltage, tone, burst
}

func (s *DVBS) sendDiseqc(streamID, fd int, sat *dvb.Satellite, hiband bool) error {
	cmd, voltage, tone, burst := diseqcSequence(sat.DiseqcSrc, hiband, sat.Polarization)
	log.Printf("delivery: stream=%d diseqc src=%d hiband=%t pol=%s data=0x%02x",
		streamID, sat.DiseqcSrc, hiband, sat.Polarization, cmd.Msg[3])

	if err := dvb.IoctlInt(fd, dvb.FESetTone, uintptr(dvb.SecToneOff)); err != nil {
		return fmt.Errorf("FE_SET_TONE off: %w", err)
	}
	if err := dvb.IoctlInt(fd, dvb.FESetVoltage, uintptr(voltage)); err != nil {
		return fmt.Errorf("FE_SET_VOLTAGE: %w", err)
	}
	sleep(15 * time.Millisecond)
	if err := dvb.Ioctl(fd, dvb.FEDiseqcSendMasterCmd, unsafe.Pointer(&cmd)); err != nil {
		return fmt.Errorf("FE_DISEQC_SEND_MASTER_CMD: %w", err)
	}
	sleep(s.DiseqcWait)
	sleep(15 * time.Millisecond)
	if err := dvb.IoctlInt(fd, dvb.FEDiseqcSendBurst, uintptr(burst)); err != nil {
		return fmt.Errorf("FE_DISEQC_SEND_BURST: %w", err)
	}
	sleep(15 * time.Millisecond)
	if err := dvb.IoctlInt(fd, dvb.FESetTone, uintptr(tone)); err != nil {
		return fmt.Errorf("FE_SET_TONE: %w", err)
	}
	return nil
}

// satelliteProperties builds the post-DiSEqC property list. FREQUENCY carries
// the intermediate frequency in kHz; inversion and pilot ride on auto.
func satelliteProperties(t *dvb.TuningParams, ifreq uint32) []dvb.Property {
	sat := &t.Sat
	return []dvb.Property{
		prop(dvb.DTVDeliverySystem, uint32(t.DeliverySystem)),
		prop(dvb.DTVFrequency, ifreq),
		prop(dvb.DTVModulation, uint32(sat.Modulation)),
		prop(dvb.DTVSymbolRate, sat.SymbolRate),
		prop(dvb.DTVInnerFEC, uint32(sat.FEC)),
		prop(dvb.DTVInversion, uint32(dvb.InversionAuto)),
		prop(dvb.DTVRolloff, uint32(sat.Rolloff)),
		prop(dvb.DTVPilot, uint32(dvb.PilotAuto)),
		{Cmd: dvb.DTVTune},
	}
}

func (s *DVBS) Tune(streamID, fd int, ch *dvb.Channel) error {
	t := &ch.Tuning
	if err := clearProperties(fd); err != nil {
		return fmt.Errorf("%w: clear: %s", dvb.ErrTuneFailed, err)
	}
	ifreq, hiband := intermediateFrequency(t.Frequency, t.Sat.LNB)
	if err := s.sendDiseqc(streamID, fd, &t.Sat, hiband); err != nil {
		return fmt.Errorf("%w: %s", dvb.ErrTuneFailed, err)
	}
	if err := dvb.SubmitProperties(fd, satelliteProperties(t, ifreq)); err != nil {
		return fmt.Errorf("%w: property set: %s", dvb.ErrTuneFailed, err)
	}
	log.Printf("delivery: stream=%d tune msys=%s if_khz=%d srate=%d fec=%s",
		streamID, t.DeliverySystem, ifreq, t.Sat.SymbolRate, t.Sat.FEC)
	return nil
}
