package spihost

// Register block layout. Offsets are relative to the controller base
// address. [OT-SPIHOST|Registers]
const (
	RegIntrState   = 0x00 // interrupt pending, write 1 to clear
	RegIntrEnable  = 0x04
	RegIntrTest    = 0x08
	RegControl     = 0x10
	RegStatus      = 0x14
	RegConfigOpts  = 0x18 // bus configuration for the single chip select
	RegCSID        = 0x1C
	RegCommand     = 0x20
	RegRxData      = 0x24
	RegTxData      = 0x28
	RegErrorEnable = 0x2C
	RegErrorStatus = 0x30
	RegEventEnable = 0x34
)

// INTR_STATE / INTR_ENABLE bits.
const (
	IntrError = 1 << 0
	IntrEvent = 1 << 1
)

// CONTROL bits.
const (
	CtrlRxWatermarkMask  = 0xFF
	CtrlRxWatermarkShift = 0
	CtrlTxWatermarkShift = 8
	CtrlOutputEnable     = 1 << 29
	CtrlSwReset          = 1 << 30
	CtrlSpiEnable        = 1 << 31
)

// STATUS bits.
const (
	StatusTxQDMask  = 0xFF
	StatusTxQDShift = 0
	StatusRxQDMask  = 0xFF
	StatusRxQDShift = 8
	StatusRxWM      = 1 << 20
	StatusRxEmpty   = 1 << 24
	StatusRxFull    = 1 << 25
	StatusTxEmpty   = 1 << 27
	StatusTxFull    = 1 << 28
	StatusActive    = 1 << 29
	StatusReady     = 1 << 30
)

// EVENT_ENABLE bits select which controller events raise the event
// interrupt.
const (
	EventRxFull  = 1 << 0
	EventTxEmpty = 1 << 1
	EventRxWM    = 1 << 2
	EventTxWM    = 1 << 3
	EventReady   = 1 << 4
	EventIdle    = 1 << 5
)
