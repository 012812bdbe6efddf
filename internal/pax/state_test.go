package pax

import (
	"reflect"
	"testing"

	"github.com/openpax/paxctl/internal/pax/protocol"
)

func TestApplyBatterySetsOnlyBattery(t *testing.T) {
	var s State
	s = s.apply(protocol.BatteryEvent{Percent: 73})

	if s.BatteryPercent == nil || *s.BatteryPercent != 73 {
		t.Fatalf("BatteryPercent = %v, want 73", s.BatteryPercent)
	}
	if s.Locked != nil || s.Heating != nil || s.Charging != nil ||
		s.CurrentTemp != nil || s.TargetTemp != nil {
		t.Errorf("battery event touched unrelated fields: %+v", s)
	}
	if s.Status != StatusDisconnected {
		t.Errorf("battery event changed connection status: %v", s.Status)
	}
}

func TestApplyTemperatureAttributes(t *testing.T) {
	var s State
	s = s.apply(protocol.TemperatureEvent{Attr: protocol.TypeActualTemp, Celsius: 182.5})
	s = s.apply(protocol.TemperatureEvent{Attr: protocol.TypeHeaterSetPoint, Celsius: 190.0})

	if s.CurrentTemp == nil || *s.CurrentTemp != 182.5 {
		t.Errorf("CurrentTemp = %v, want 182.5", s.CurrentTemp)
	}
	if s.TargetTemp == nil || *s.TargetTemp != 190.0 {
		t.Errorf("TargetTemp = %v, want 190.0", s.TargetTemp)
	}

	// CurrentTargetTemp updates the same setpoint field.
	s = s.apply(protocol.TemperatureEvent{Attr: protocol.TypeCurrentTargetTemp, Celsius: 200.0})
	if *s.TargetTemp != 200.0 {
		t.Errorf("TargetTemp after CurrentTargetTemp = %v, want 200.0", *s.TargetTemp)
	}
}

func TestApplyChargeStatus(t *testing.T) {
	var s State
	s = s.apply(protocol.ChargeStatusEvent{Charging: true, Complete: false})
	if s.Charging == nil || !*s.Charging {
		t.Errorf("Charging = %v, want true", s.Charging)
	}
	if s.ChargeComplete == nil || *s.ChargeComplete {
		t.Errorf("ChargeComplete = %v, want false", s.ChargeComplete)
	}
}

func TestApplyUnknownLeavesStateUnchanged(t *testing.T) {
	var s State
	s = s.apply(protocol.BatteryEvent{Percent: 50})
	s = s.apply(protocol.LockStateEvent{Locked: true})
	s = s.apply(protocol.TemperatureEvent{Attr: protocol.TypeActualTemp, Celsius: 180})
	before := s.clone()

	s = s.apply(protocol.UnknownEvent{Type: 0xAB, Raw: []byte{0xAB, 0x01}})

	if !reflect.DeepEqual(s.clone(), before) {
		t.Errorf("unknown event changed state: before %+v after %+v", before, s)
	}
}

func TestCloneIsolatesSnapshots(t *testing.T) {
	var s State
	s = s.apply(protocol.BatteryEvent{Percent: 50})

	snapshot := s.clone()
	*snapshot.BatteryPercent = 99

	if *s.BatteryPercent != 50 {
		t.Errorf("mutating a snapshot leaked into the source: %d", *s.BatteryPercent)
	}
}

func TestConnectionStatusStrings(t *testing.T) {
	cases := map[ConnectionStatus]string{
		StatusDisconnected: "disconnected",
		StatusConnecting:   "connecting",
		StatusConnected:    "connected",
		StatusReconnecting: "reconnecting",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}
