package message

import (
	"time"

	"github.com/opd-ai/panellink/wire"
)

// Command words of the panel status and control messages.
const (
	WordZoneStatus         uint16 = 0x0210
	WordPartitionStatus    uint16 = 0x0211
	WordEventReport        uint16 = 0x0220
	WordZoneLabelReport    uint16 = 0x0231
	WordArmPartition       uint16 = 0x0301
	WordDisarmPartition    uint16 = 0x0302
	WordUserCodeWrite      uint16 = 0x0310
	WordTimeDateWrite      uint16 = 0x0320
	WordZoneAssignmentRead uint16 = 0x0330
	WordZoneAssignment     uint16 = 0x0331
)

// ZoneState is the reported condition of a zone.
type ZoneState uint8

const (
	ZoneRestored ZoneState = iota
	ZoneOpen
	ZoneTamper
	ZoneFault
)

// Valid reports whether the discriminant is a known zone state.
func (s ZoneState) Valid() bool { return s <= ZoneFault }

// PartitionState is the reported condition of a partition.
type PartitionState uint8

const (
	PartitionDisarmed PartitionState = iota
	PartitionArmedAway
	PartitionArmedStay
	PartitionInAlarm
	PartitionExitDelay
	PartitionEntryDelay
)

// Valid reports whether the discriminant is a known partition state.
func (s PartitionState) Valid() bool { return s <= PartitionEntryDelay }

// ArmMode selects how a partition is armed.
type ArmMode uint8

const (
	ArmAway ArmMode = iota
	ArmStay
	ArmNight
	ArmNoEntryDelay
)

// Valid reports whether the discriminant is a known arm mode.
func (m ArmMode) Valid() bool { return m <= ArmNoEntryDelay }

// ZoneFlags carries the per-zone condition bits alongside the state.
type ZoneFlags struct {
	Bypassed    bool  `bit:"0"`
	LowBattery  bool  `bit:"1"`
	Supervisory bool  `bit:"2"`
	AlarmMemory bool  `bit:"7"`
	SignalLevel uint8 `bit:"4,width=3"`
}

// ZoneStatusNotification reports a zone condition change.
type ZoneStatusNotification struct {
	Zone   uint16    `wire:"u16"`
	Status ZoneState `wire:"u8"`
	Flags  ZoneFlags `wire:"bits,bytes=1"`
}

// CommandWord implements wire.Message.
func (m *ZoneStatusNotification) CommandWord() uint16 { return WordZoneStatus }

// PartitionStatusNotification reports a partition condition change.
type PartitionStatusNotification struct {
	Partition uint8          `wire:"u8"`
	State     PartitionState `wire:"u8"`
}

// CommandWord implements wire.Message.
func (m *PartitionStatusNotification) CommandWord() uint16 { return WordPartitionStatus }

// EventReport is one entry of the panel's event log.
type EventReport struct {
	Timestamp time.Time `wire:"datetime"`
	Partition uint8     `wire:"u8"`
	Event     uint16    `wire:"u16"`
	UserCode  string    `wire:"bcd,prefix"`
}

// CommandWord implements wire.Message.
func (m *EventReport) CommandWord() uint16 { return WordEventReport }

// ZoneLabelReport carries the programmed labels of a zone range.
type ZoneLabelReport struct {
	FirstZone uint16   `wire:"u16"`
	Labels    []string `wire:"stringarray"`
}

// CommandWord implements wire.Message.
func (m *ZoneLabelReport) CommandWord() uint16 { return WordZoneLabelReport }

// ArmPartition arms one partition.
type ArmPartition struct {
	wire.Command
	Partition  uint8   `wire:"u8"`
	Mode       ArmMode `wire:"u8"`
	AccessCode string  `wire:"bcd,prefix"`
}

// CommandWord implements wire.Message.
func (m *ArmPartition) CommandWord() uint16 { return WordArmPartition }

// DisarmPartition disarms one partition.
type DisarmPartition struct {
	wire.Command
	Partition  uint8  `wire:"u8"`
	AccessCode string `wire:"bcd,prefix"`
}

// CommandWord implements wire.Message.
func (m *DisarmPartition) CommandWord() uint16 { return WordDisarmPartition }

// UserCodeWrite programs an access code slot.
type UserCodeWrite struct {
	wire.Command
	User uint16 `wire:"compact"`
	Code string `wire:"bcd,len=4"`
}

// CommandWord implements wire.Message.
func (m *UserCodeWrite) CommandWord() uint16 { return WordUserCodeWrite }

// TimeDateWrite sets the panel clock.
type TimeDateWrite struct {
	wire.Command
	Now time.Time `wire:"datetime"`
}

// CommandWord implements wire.Message.
func (m *TimeDateWrite) CommandWord() uint16 { return WordTimeDateWrite }

// ZoneAssignmentRead asks which zones belong to a partition.
type ZoneAssignmentRead struct {
	wire.Command
	Partition uint8 `wire:"u8"`
}

// CommandWord implements wire.Message.
func (m *ZoneAssignmentRead) CommandWord() uint16 { return WordZoneAssignmentRead }

// ZoneAssignment is the reply to ZoneAssignmentRead: one bit per zone.
type ZoneAssignment struct {
	Partition uint8  `wire:"u8"`
	ZoneMask  []byte `wire:"bytes,rest"`
}

// CommandWord implements wire.Message.
func (m *ZoneAssignment) CommandWord() uint16 { return WordZoneAssignment }

func init() {
	wire.Register(WordZoneStatus, func() wire.Message { return &ZoneStatusNotification{} })
	wire.Register(WordPartitionStatus, func() wire.Message { return &PartitionStatusNotification{} })
	wire.Register(WordEventReport, func() wire.Message { return &EventReport{} })
	wire.Register(WordZoneLabelReport, func() wire.Message { return &ZoneLabelReport{} })
	wire.Register(WordArmPartition, func() wire.Message { return &ArmPartition{} })
	wire.Register(WordDisarmPartition, func() wire.Message { return &DisarmPartition{} })
	wire.Register(WordUserCodeWrite, func() wire.Message { return &UserCodeWrite{} })
	wire.Register(WordTimeDateWrite, func() wire.Message { return &TimeDateWrite{} })
	wire.Register(WordZoneAssignmentRead, func() wire.Message { return &ZoneAssignmentRead{} })
	wire.Register(WordZoneAssignment, func() wire.Message { return &ZoneAssignment{} })
}
