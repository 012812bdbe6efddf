// Package protocol implements the reverse-engineered Pax attribute protocol.
// Every frame is a single message: a leading opcode byte followed by a
// fixed-width big-endian payload. Encoding is bit-exact against captured
// traces; decoding is total: anything unrecognized comes back as
// UnknownMessage rather than an error.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// MessageType is the leading opcode byte of every frame.
type MessageType byte

const (
	TypeActualTemp          MessageType = 1
	TypeHeaterSetPoint      MessageType = 2
	TypeBattery             MessageType = 3
	TypeUsage               MessageType = 4
	TypeUsageLimit          MessageType = 5
	TypeLockStatus          MessageType = 6
	TypeChargeStatus        MessageType = 7
	TypePodInserted         MessageType = 8
	TypeTime                MessageType = 9
	TypeDisplayName         MessageType = 10
	TypeHeaterRanges        MessageType = 17
	TypeDynamicMode         MessageType = 19
	TypeColorTheme          MessageType = 20
	TypeBrightness          MessageType = 21
	TypeHapticMode          MessageType = 23
	TypeSupportedAttributes MessageType = 24
	TypeHeatingParams       MessageType = 25
	TypeUIMode              MessageType = 27
	TypeShellColor          MessageType = 28
	TypeLowSoCMode          MessageType = 30
	TypeCurrentTargetTemp   MessageType = 31
	TypeHeatingState        MessageType = 32
	TypeHaptics             MessageType = 40
	TypeStatusUpdate        MessageType = 254
)

// Oven temperature limits of the heater, in °C. The firmware rejects
// setpoints outside this window, so we refuse to encode them.
const (
	MinOvenTemp = 175.0
	MaxOvenTemp = 215.0
)

// DynamicMode selects one of the device's heating profiles.
type DynamicMode byte

const (
	ModeStandard   DynamicMode = 0
	ModeBoost      DynamicMode = 1
	ModeEfficiency DynamicMode = 2
	ModeStealth    DynamicMode = 3
	ModeFlavor     DynamicMode = 4
)

func (m DynamicMode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeBoost:
		return "boost"
	case ModeEfficiency:
		return "efficiency"
	case ModeStealth:
		return "stealth"
	case ModeFlavor:
		return "flavor"
	default:
		return fmt.Sprintf("mode(%d)", byte(m))
	}
}

// Command is an encodable outgoing frame.
type Command interface {
	// Encode returns the wire bytes for the command. It validates field
	// ranges before touching the wire layout.
	Encode() ([]byte, error)
}

// LockCommand locks or unlocks the device.
type LockCommand struct {
	Locked bool
}

func (c LockCommand) Encode() ([]byte, error) {
	b := byte(0)
	if c.Locked {
		b = 1
	}
	return []byte{byte(TypeLockStatus), b}, nil
}

// SetTemperatureCommand sets the heater setpoint in °C.
// The wire carries tenths of a degree as a big-endian uint16.
type SetTemperatureCommand struct {
	Celsius float64
}

func (c SetTemperatureCommand) Encode() ([]byte, error) {
	if c.Celsius < MinOvenTemp || c.Celsius > MaxOvenTemp {
		return nil, fmt.Errorf("protocol: temperature %.1f°C outside oven range %.0f–%.0f: %w",
			c.Celsius, MinOvenTemp, MaxOvenTemp, ErrTemperatureOutOfRange)
	}
	buf := make([]byte, 3)
	buf[0] = byte(TypeHeaterSetPoint)
	binary.BigEndian.PutUint16(buf[1:], uint16(c.Celsius*10+0.5))
	return buf, nil
}

// SetDynamicModeCommand switches the heating profile.
type SetDynamicModeCommand struct {
	Mode DynamicMode
}

func (c SetDynamicModeCommand) Encode() ([]byte, error) {
	if c.Mode > ModeFlavor {
		return nil, fmt.Errorf("protocol: invalid dynamic mode %d: %w", byte(c.Mode), ErrInvalidMode)
	}
	return []byte{byte(TypeDynamicMode), byte(c.Mode)}, nil
}

// StatusRequestCommand asks the device to re-broadcast the listed
// attributes. The payload is a uint64 bitmask with bit n set for each
// requested opcode; opcodes above 63 cannot be requested this way.
type StatusRequestCommand struct {
	Attributes []MessageType
}

func (c StatusRequestCommand) Encode() ([]byte, error) {
	var mask uint64
	for _, attr := range c.Attributes {
		if attr <= 63 {
			mask |= 1 << uint(attr)
		}
	}
	buf := make([]byte, 9)
	buf[0] = byte(TypeStatusUpdate)
	binary.BigEndian.PutUint64(buf[1:], mask)
	return buf, nil
}

// AllStatusAttributes covers everything the session mirrors; sending it
// after connect primes the state model.
var AllStatusAttributes = []MessageType{
	TypeActualTemp,
	TypeHeaterSetPoint,
	TypeBattery,
	TypeLockStatus,
	TypeChargeStatus,
	TypeSupportedAttributes,
	TypeCurrentTargetTemp,
	TypeHeatingState,
}
