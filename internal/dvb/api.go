// Package dvb carries the Linux DVB v5 API surface satbridge drives: the
// frontend/demux ioctl set, the property and filter structs, the delivery
// system / modulation / FEC enums, and the tuning + PID-table data model
// shared between the frontend and the streaming layer.
package dvb

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Delivery systems (fe_delivery_system). Only the DVB S/S2/T/T2/C/C2 variants
// are tuned by this server; the rest exist so enumeration can name them.
type DeliverySystem uint32

const (
	SysUndefined  DeliverySystem = 0
	SysDVBCAnnexA DeliverySystem = 1
	SysDVBCAnnexB DeliverySystem = 2
	SysDVBT       DeliverySystem = 3
	SysDSS        DeliverySystem = 4
	SysDVBS       DeliverySystem = 5
	SysDVBS2      DeliverySystem = 6
	SysDVBH       DeliverySystem = 7
	SysISDBT      DeliverySystem = 8
	SysISDBS      DeliverySystem = 9
	SysISDBC      DeliverySystem = 10
	SysATSC       DeliverySystem = 11
	SysATSCMH     DeliverySystem = 12
	SysDTMB       DeliverySystem = 13
	SysCMMB       DeliverySystem = 14
	SysDAB        DeliverySystem = 15
	SysDVBT2      DeliverySystem = 16
	SysTurbo      DeliverySystem = 17
	SysDVBCAnnexC DeliverySystem = 18
	SysDVBC2      DeliverySystem = 19
)

// Modulation (fe_modulation).
type Modulation uint32

const (
	ModQPSK    Modulation = 0
	ModQAM16   Modulation = 1
	ModQAM32   Modulation = 2
	ModQAM64   Modulation = 3
	ModQAM128  Modulation = 4
	ModQAM256  Modulation = 5
	ModQAMAuto Modulation = 6
	ModVSB8    Modulation = 7
	ModVSB16   Modulation = 8
	ModPSK8    Modulation = 9
	ModAPSK16  Modulation = 10
	ModAPSK32  Modulation = 11
	ModDQPSK   Modulation = 12
)

// Inner FEC (fe_code_rate).
type CodeRate uint32

const (
	FECNone CodeRate = 0
	FEC12   CodeRate = 1
	FEC23   CodeRate = 2
	FEC34   CodeRate = 3
	FEC45   CodeRate = 4
	FEC56   CodeRate = 5
	FEC67   CodeRate = 6
	FEC78   CodeRate = 7
	FEC89   CodeRate = 8
	FECAuto CodeRate = 9
	FEC35   CodeRate = 10
	FEC910  CodeRate = 11
	FEC25   CodeRate = 12
)

// Spectral inversion (fe_spectral_inversion).
type Inversion uint32

const (
	InversionOff  Inversion = 0
	InversionOn   Inversion = 1
	InversionAuto Inversion = 2
)

// Roll-off (fe_rolloff).
type Rolloff uint32

const (
	Rolloff35   Rolloff = 0
	Rolloff20   Rolloff = 1
	Rolloff25   Rolloff = 2
	RolloffAuto Rolloff = 3
)

// Pilot tones (fe_pilot).
type Pilot uint32

const (
	PilotOn   Pilot = 0
	PilotOff  Pilot = 1
	PilotAuto Pilot = 2
)

// Transmission mode (fe_transmit_mode).
type TransmitMode uint32

const (
	TransmissionMode2K   TransmitMode = 0
	TransmissionMode8K   TransmitMode = 1
	TransmissionModeAuto TransmitMode = 2
	TransmissionMode4K   TransmitMode = 3
	TransmissionMode1K   TransmitMode = 4
	TransmissionMode16K  TransmitMode = 5
	TransmissionMode32K  TransmitMode = 6
)

// Guard interval (fe_guard_interval).
type GuardInterval uint32

const (
	GuardInterval132   GuardInterval = 0
	GuardInterval116   GuardInterval = 1
	GuardInterval18    GuardInterval = 2
	GuardInterval14    GuardInterval = 3
	GuardIntervalAuto  GuardInterval = 4
	GuardInterval1128  GuardInterval = 5
	GuardInterval19128 GuardInterval = 6
	GuardInterval19256 GuardInterval = 7
)

// Hierarchy (fe_hierarchy).
type Hierarchy uint32

const (
	HierarchyNone Hierarchy = 0
	Hierarchy1    Hierarchy = 1
	Hierarchy2    Hierarchy = 2
	Hierarchy4    Hierarchy = 3
	HierarchyAuto Hierarchy = 4
)

// Polarization of a satellite transponder. Not a kernel enum; it selects LNB
// voltage during DiSEqC.
type Polarization uint8

const (
	PolHorizontal Polarization = iota
	PolVertical
	PolCircularLeft
	PolCircularRight
)

// Frontend status bits (fe_status).
const (
	StatusHasSignal  uint32 = 0x01
	StatusHasCarrier uint32 = 0x02
	StatusHasViterbi uint32 = 0x04
	StatusHasSync    uint32 = 0x08
	StatusHasLock    uint32 = 0x10
	StatusTimedout   uint32 = 0x20
	StatusReinit     uint32 = 0x40
)

// Legacy frontend types (fe_type), used by the pre-5.5 delivery-system fallback.
const (
	FETypeQPSK uint32 = 0
	FETypeQAM  uint32 = 1
	FETypeOFDM uint32 = 2
	FETypeATSC uint32 = 3
)

// Frontend capability bits (fe_caps) the fallback consults.
const (
	CapCanQAM64        uint32 = 0x2000
	CapCanQAM256       uint32 = 0x8000
	CapCanQAMAuto      uint32 = 0x10000
	CapCan2GModulation uint32 = 0x10000000
)

// SEC voltage / tone / mini burst (fe_sec_*).
const (
	SecVoltage13  uint32 = 0
	SecVoltage18  uint32 = 1
	SecVoltageOff uint32 = 2

	SecToneOn  uint32 = 0
	SecToneOff uint32 = 1

	SecMiniA uint32 = 0
	SecMiniB uint32 = 1
)

// DTV property commands (subset of DTV_* used here).
const (
	DTVUndefined        uint32 = 0
	DTVTune             uint32 = 1
	DTVClear            uint32 = 2
	DTVFrequency        uint32 = 3
	DTVModulation       uint32 = 4
	DTVBandwidthHz      uint32 = 5
	DTVInversion        uint32 = 6
	DTVSymbolRate       uint32 = 8
	DTVInnerFEC         uint32 = 9
	DTVPilot            uint32 = 12
	DTVRolloff          uint32 = 13
	DTVDeliverySystem   uint32 = 17
	DTVCodeRateHP       uint32 = 36
	DTVCodeRateLP       uint32 = 37
	DTVGuardInterval    uint32 = 38
	DTVTransmissionMode uint32 = 39
	DTVHierarchy        uint32 = 40
	DTVStreamID         uint32 = 42
	DTVEnumDelsys       uint32 = 44
)

// Demux filter parameters (linux/dvb/dmx.h).
const (
	DmxInFrontend uint32 = 0
	DmxOutTSTap   uint32 = 2
	DmxPESOther   uint32 = 20

	DmxImmediateStart uint32 = 4
)

// FrontendInfo mirrors struct dvb_frontend_info.
type FrontendInfo struct {
	Name                [128]byte
	Type                uint32
	FrequencyMin        uint32
	FrequencyMax        uint32
	FrequencyStepsize   uint32
	FrequencyTolerance  uint32
	SymbolRateMin       uint32
	SymbolRateMax       uint32
	SymbolRateTolerance uint32
	NotifierDelay       uint32
	Caps                uint32
}

// DiseqcMasterCmd mirrors struct dvb_diseqc_master_cmd.
type DiseqcMasterCmd struct {
	Msg [6]byte
	Len uint8
}

// Property mirrors struct dtv_property, which the kernel declares packed.
// The 56-byte union is kept raw; Data/SetData and Buffer pick it apart.
type Property struct {
	Cmd      uint32
	Reserved [3]uint32
	U        [56]byte
	Result   int32
}

// SetData stores v as the u.data member.
func (p *Property) SetData(v uint32) {
	p.U[0] = byte(v)
	p.U[1] = byte(v >> 8)
	p.U[2] = byte(v >> 16)
	p.U[3] = byte(v >> 24)
}

// Data returns the u.data member.
func (p *Property) Data() uint32 {
	return uint32(p.U[0]) | uint32(p.U[1])<<8 | uint32(p.U[2])<<16 | uint32(p.U[3])<<24
}

// Buffer returns the u.buffer.data bytes limited by u.buffer.len.
func (p *Property) Buffer() []byte {
	n := int(uint32(p.U[32]) | uint32(p.U[33])<<8 | uint32(p.U[34])<<16 | uint32(p.U[35])<<24)
	if n < 0 || n > 32 {
		n = 32
	}
	return p.U[:n]
}

// Properties mirrors struct dtv_properties (num + pointer, 64-bit layout).
type Properties struct {
	Num   uint32
	_     [4]byte
	Props *Property
}

// PESFilterParams mirrors struct dmx_pes_filter_params.
type PESFilterParams struct {
	Pid     uint16
	_       [2]byte
	Input   uint32
	Output  uint32
	PESType uint32
	Flags   uint32
}

// ── ioctl request numbers ─────────────────────────────────────────────────────
// Computed the _IO/_IOR/_IOW way so the struct sizes above stay the single
// source of truth.

const (
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func io(typ, nr uintptr) uintptr        { return ioc(0, typ, nr, 0) }
func ior(typ, nr, size uintptr) uintptr { return ioc(iocRead, typ, nr, size) }
func iow(typ, nr, size uintptr) uintptr { return ioc(iocWrite, typ, nr, size) }

var (
	FEGetInfo               = ior('o', 61, unsafe.Sizeof(FrontendInfo{}))
	FEDiseqcSendMasterCmd   = iow('o', 63, unsafe.Sizeof(DiseqcMasterCmd{}))
	FEDiseqcSendBurst       = io('o', 65)
	FESetTone               = io('o', 66)
	FESetVoltage            = io('o', 67)
	FEReadStatus            = ior('o', 69, unsafe.Sizeof(uint32(0)))
	FEReadBER               = ior('o', 70, unsafe.Sizeof(uint32(0)))
	FEReadSignalStrength    = ior('o', 71, unsafe.Sizeof(uint16(0)))
	FEReadSNR               = ior('o', 72, unsafe.Sizeof(uint16(0)))
	FEReadUncorrectedBlocks = ior('o', 73, unsafe.Sizeof(uint32(0)))
	FESetProperty           = iow('o', 82, unsafe.Sizeof(Properties{}))
	FEGetProperty           = ior('o', 83, unsafe.Sizeof(Properties{}))

	DmxStop          = io('o', 42)
	DmxSetPESFilter  = iow('o', 44, unsafe.Sizeof(PESFilterParams{}))
	DmxSetBufferSize = io('o', 45)
)

// Ioctl issues a raw ioctl with a pointer argument.
func Ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// IoctlInt issues a raw ioctl whose third argument is a plain value
// (FE_SET_TONE, FE_SET_VOLTAGE, FE_DISEQC_SEND_BURST, DMX_SET_BUFFER_SIZE).
func IoctlInt(fd int, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// SubmitProperties sends a property sequence to the frontend via FE_SET_PROPERTY.
func SubmitProperties(fd int, props []Property) error {
	if len(props) == 0 {
		return nil
	}
	ps := Properties{Num: uint32(len(props)), Props: &props[0]}
	return Ioctl(fd, FESetProperty, unsafe.Pointer(&ps))
}
