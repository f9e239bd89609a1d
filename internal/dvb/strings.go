package dvb

import "fmt"

// String forms below follow the SAT>IP descriptor vocabulary, not the kernel
// enum names, because the descriptor is the only place they are rendered.

func (d DeliverySystem) String() string {
	switch d {
	case SysDVBS:
		return "dvbs"
	case SysDVBS2:
		return "dvbs2"
	case SysDVBT:
		return "dvbt"
	case SysDVBT2:
		return "dvbt2"
	case SysDVBCAnnexA, SysDVBCAnnexB, SysDVBCAnnexC:
		return "dvbc"
	case SysDVBC2:
		return "dvbc2"
	case SysUndefined:
		return "undefined"
	default:
		return fmt.Sprintf("delsys(%d)", uint32(d))
	}
}

// ParseDeliverySystem maps a SAT>IP msys token back to the enum.
func ParseDeliverySystem(s string) (DeliverySystem, error) {
	switch s {
	case "dvbs":
		return SysDVBS, nil
	case "dvbs2":
		return SysDVBS2, nil
	case "dvbt":
		return SysDVBT, nil
	case "dvbt2":
		return SysDVBT2, nil
	case "dvbc":
		return SysDVBCAnnexA, nil
	case "dvbc2":
		return SysDVBC2, nil
	}
	return SysUndefined, fmt.Errorf("unknown delivery system %q", s)
}

func (m Modulation) String() string {
	switch m {
	case ModQPSK:
		return "qpsk"
	case ModPSK8:
		return "8psk"
	case ModQAM16:
		return "16qam"
	case ModQAM32:
		return "32qam"
	case ModQAM64:
		return "64qam"
	case ModQAM128:
		return "128qam"
	case ModQAM256:
		return "256qam"
	case ModQAMAuto:
		return "auto"
	default:
		return fmt.Sprintf("mod(%d)", uint32(m))
	}
}

// ParseModulation maps a SAT>IP mtype token back to the enum.
func ParseModulation(s string) (Modulation, error) {
	switch s {
	case "qpsk":
		return ModQPSK, nil
	case "8psk":
		return ModPSK8, nil
	case "16qam":
		return ModQAM16, nil
	case "32qam":
		return ModQAM32, nil
	case "64qam":
		return ModQAM64, nil
	case "128qam":
		return ModQAM128, nil
	case "256qam":
		return ModQAM256, nil
	case "auto":
		return ModQAMAuto, nil
	}
	return ModQAMAuto, fmt.Errorf("unknown modulation %q", s)
}

func (f CodeRate) String() string {
	switch f {
	case FECNone:
		return "none"
	case FEC12:
		return "1/2"
	case FEC23:
		return "2/3"
	case FEC34:
		return "3/4"
	case FEC35:
		return "3/5"
	case FEC45:
		return "4/5"
	case FEC56:
		return "5/6"
	case FEC67:
		return "6/7"
	case FEC78:
		return "7/8"
	case FEC89:
		return "8/9"
	case FEC910:
		return "9/10"
	case FEC25:
		return "2/5"
	case FECAuto:
		return "auto"
	default:
		return fmt.Sprintf("fec(%d)", uint32(f))
	}
}

// ParseCodeRate maps an "X/Y" (or "none"/"auto") token back to the enum.
func ParseCodeRate(s string) (CodeRate, error) {
	switch s {
	case "none":
		return FECNone, nil
	case "1/2":
		return FEC12, nil
	case "2/3":
		return FEC23, nil
	case "3/4":
		return FEC34, nil
	case "3/5":
		return FEC35, nil
	case "4/5":
		return FEC45, nil
	case "5/6":
		return FEC56, nil
	case "6/7":
		return FEC67, nil
	case "7/8":
		return FEC78, nil
	case "8/9":
		return FEC89, nil
	case "9/10":
		return FEC910, nil
	case "2/5":
		return FEC25, nil
	case "auto":
		return FECAuto, nil
	}
	return FECAuto, fmt.Errorf("unknown code rate %q", s)
}

func (r Rolloff) String() string {
	switch r {
	case Rolloff20:
		return "0.20"
	case Rolloff25:
		return "0.25"
	case Rolloff35:
		return "0.35"
	case RolloffAuto:
		return "auto"
	default:
		return fmt.Sprintf("rolloff(%d)", uint32(r))
	}
}

// ParseRolloff maps a SAT>IP ro token back to the enum.
func ParseRolloff(s string) (Rolloff, error) {
	switch s {
	case "0.20":
		return Rolloff20, nil
	case "0.25":
		return Rolloff25, nil
	case "0.35":
		return Rolloff35, nil
	case "auto":
		return RolloffAuto, nil
	}
	return RolloffAuto, fmt.Errorf("unknown rolloff %q", s)
}

func (p Pilot) String() string {
	switch p {
	case PilotOn:
		return "on"
	case PilotOff:
		return "off"
	case PilotAuto:
		return "auto"
	default:
		return fmt.Sprintf("pilot(%d)", uint32(p))
	}
}

// ParsePilot maps a SAT>IP plts token back to the enum.
func ParsePilot(s string) (Pilot, error) {
	switch s {
	case "on":
		return PilotOn, nil
	case "off":
		return PilotOff, nil
	case "auto":
		return PilotAuto, nil
	}
	return PilotAuto, fmt.Errorf("unknown pilot %q", s)
}

func (p Polarization) String() string {
	switch p {
	case PolVertical:
		return "v"
	case PolHorizontal:
		return "h"
	case PolCircularLeft:
		return "l"
	case PolCircularRight:
		return "r"
	default:
		return "h"
	}
}

// ParsePolarization maps a SAT>IP pol token back to the enum.
func ParsePolarization(s string) (Polarization, error) {
	switch s {
	case "v":
		return PolVertical, nil
	case "h":
		return PolHorizontal, nil
	case "l":
		return PolCircularLeft, nil
	case "r":
		return PolCircularRight, nil
	}
	return PolHorizontal, fmt.Errorf("unknown polarization %q", s)
}

func (t TransmitMode) String() string {
	switch t {
	case TransmissionMode1K:
		return "1k"
	case TransmissionMode2K:
		return "2k"
	case TransmissionMode4K:
		return "4k"
	case TransmissionMode8K:
		return "8k"
	case TransmissionMode16K:
		return "16k"
	case TransmissionMode32K:
		return "32k"
	case TransmissionModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("tmode(%d)", uint32(t))
	}
}

func (g GuardInterval) String() string {
	switch g {
	case GuardInterval14:
		return "1/4"
	case GuardInterval18:
		return "1/8"
	case GuardInterval116:
		return "1/16"
	case GuardInterval132:
		return "1/32"
	case GuardInterval1128:
		return "1/128"
	case GuardInterval19128:
		return "19/128"
	case GuardInterval19256:
		return "19/256"
	case GuardIntervalAuto:
		return "auto"
	default:
		return fmt.Sprintf("gi(%d)", uint32(g))
	}
}
