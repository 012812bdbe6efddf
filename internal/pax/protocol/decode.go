package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sentinel errors for command validation. Decoding never returns errors.
var (
	ErrTemperatureOutOfRange = errors.New("temperature out of range")
	ErrInvalidMode           = errors.New("invalid mode")
)

// Event is a decoded notification frame.
type Event interface {
	event()
}

// LockStateEvent reports the keypad lock state.
type LockStateEvent struct {
	Locked bool
}

// TemperatureEvent reports a temperature attribute in °C. Which one is
// identified by Attr: TypeActualTemp, TypeHeaterSetPoint, or
// TypeCurrentTargetTemp.
type TemperatureEvent struct {
	Attr    MessageType
	Celsius float64
}

// BatteryEvent reports the charge level in percent (0–100).
type BatteryEvent struct {
	Percent int
}

// ChargeStatusEvent reports charger attachment.
type ChargeStatusEvent struct {
	Charging bool
	Complete bool
}

// HeatingStateEvent reports whether the oven is actively heating.
type HeatingStateEvent struct {
	Heating bool
}

// SupportedAttributesEvent carries the attribute bitmask the firmware
// advertises after a status request.
type SupportedAttributesEvent struct {
	Attributes []MessageType
}

// DynamicModeEvent reports the active heating profile.
type DynamicModeEvent struct {
	Mode DynamicMode
}

// UnknownEvent preserves frames we cannot interpret: unlisted opcodes,
// truncated payloads, or empty packets. The raw bytes are kept verbatim for
// diagnostics, never discarded.
type UnknownEvent struct {
	Type MessageType
	Raw  []byte
}

func (LockStateEvent) event()           {}
func (TemperatureEvent) event()         {}
func (BatteryEvent) event()             {}
func (ChargeStatusEvent) event()        {}
func (HeatingStateEvent) event()        {}
func (SupportedAttributesEvent) event() {}
func (DynamicModeEvent) event()         {}
func (UnknownEvent) event()             {}

// Decode interprets a decrypted notification frame. It is total: any input,
// including empty, truncated, or corrupted packets, yields an Event. Trailing
// bytes beyond a message's fixed layout are cipher-block padding and are
// ignored.
func Decode(data []byte) Event {
	if len(data) == 0 {
		return UnknownEvent{Raw: []byte{}}
	}

	typ := MessageType(data[0])
	switch typ {
	case TypeBattery:
		if len(data) < 2 {
			return unknown(typ, data)
		}
		pct := int(data[1])
		if pct > 100 {
			return unknown(typ, data)
		}
		return BatteryEvent{Percent: pct}

	case TypeLockStatus:
		if len(data) < 2 {
			return unknown(typ, data)
		}
		return LockStateEvent{Locked: data[1] != 0}

	case TypeActualTemp, TypeHeaterSetPoint, TypeCurrentTargetTemp:
		if len(data) < 3 {
			return unknown(typ, data)
		}
		tenths := binary.BigEndian.Uint16(data[1:3])
		return TemperatureEvent{Attr: typ, Celsius: float64(tenths) / 10.0}

	case TypeChargeStatus:
		if len(data) < 2 {
			return unknown(typ, data)
		}
		return ChargeStatusEvent{
			Charging: data[1]&0x01 != 0,
			Complete: data[1]&0x02 != 0,
		}

	case TypeHeatingState:
		if len(data) < 2 {
			return unknown(typ, data)
		}
		return HeatingStateEvent{Heating: data[1] != 0}

	case TypeDynamicMode:
		if len(data) < 2 {
			return unknown(typ, data)
		}
		return DynamicModeEvent{Mode: DynamicMode(data[1])}

	case TypeSupportedAttributes, TypeStatusUpdate:
		if len(data) < 9 {
			return unknown(typ, data)
		}
		mask := binary.BigEndian.Uint64(data[1:9])
		var attrs []MessageType
		for bit := 0; bit < 64; bit++ {
			if mask&(1<<uint(bit)) != 0 {
				attrs = append(attrs, MessageType(bit))
			}
		}
		return SupportedAttributesEvent{Attributes: attrs}

	default:
		return unknown(typ, data)
	}
}

func unknown(typ MessageType, data []byte) UnknownEvent {
	raw := make([]byte, len(data))
	copy(raw, data)
	return UnknownEvent{Type: typ, Raw: raw}
}

func (e UnknownEvent) String() string {
	return fmt.Sprintf("unknown message type %d (%d bytes)", byte(e.Type), len(e.Raw))
}
