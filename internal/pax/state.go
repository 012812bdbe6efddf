// Package pax owns the device session: connection lifecycle, the mirrored
// device state, and the command surface the CLI drives.
package pax

import (
	"fmt"

	"github.com/openpax/paxctl/internal/pax/protocol"
)

// ConnectionStatus is the session's lifecycle state.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is an immutable snapshot of the last-known device attributes.
// Pointer fields are nil until the first corresponding notification arrives;
// the model never fabricates a value.
type State struct {
	Status ConnectionStatus

	Locked         *bool
	Heating        *bool
	Charging       *bool
	ChargeComplete *bool
	CurrentTemp    *float64 // °C
	TargetTemp     *float64 // °C
	BatteryPercent *int
}

// apply folds a decoded event into the state, returning the new state.
// Unknown events leave the state untouched; they are still surfaced on the
// session's event stream.
func (s State) apply(ev protocol.Event) State {
	switch e := ev.(type) {
	case protocol.LockStateEvent:
		s.Locked = ptr(e.Locked)
	case protocol.BatteryEvent:
		s.BatteryPercent = ptr(e.Percent)
	case protocol.HeatingStateEvent:
		s.Heating = ptr(e.Heating)
	case protocol.ChargeStatusEvent:
		s.Charging = ptr(e.Charging)
		s.ChargeComplete = ptr(e.Complete)
	case protocol.TemperatureEvent:
		switch e.Attr {
		case protocol.TypeActualTemp:
			s.CurrentTemp = ptr(e.Celsius)
		case protocol.TypeHeaterSetPoint, protocol.TypeCurrentTargetTemp:
			s.TargetTemp = ptr(e.Celsius)
		}
	}
	return s
}

// clone deep-copies the snapshot so callers never share pointers with the
// session's own copy.
func (s State) clone() State {
	c := s
	c.Locked = copyPtr(s.Locked)
	c.Heating = copyPtr(s.Heating)
	c.Charging = copyPtr(s.Charging)
	c.ChargeComplete = copyPtr(s.ChargeComplete)
	c.CurrentTemp = copyPtr(s.CurrentTemp)
	c.TargetTemp = copyPtr(s.TargetTemp)
	c.BatteryPercent = copyPtr(s.BatteryPercent)
	return c
}

func ptr[T any](v T) *T { return &v }

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
