package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func mustEncode(t *testing.T, cmd Command) []byte {
	t.Helper()
	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return data
}

func TestLockCommandEncoding(t *testing.T) {
	if got := mustEncode(t, LockCommand{Locked: true}); !bytes.Equal(got, []byte{0x06, 0x01}) {
		t.Errorf("lock = % x, want 06 01", got)
	}
	if got := mustEncode(t, LockCommand{Locked: false}); !bytes.Equal(got, []byte{0x06, 0x00}) {
		t.Errorf("unlock = % x, want 06 00", got)
	}
}

func TestSetTemperatureEncoding(t *testing.T) {
	// 185.0°C → 1850 tenths → 0x073A big-endian.
	got := mustEncode(t, SetTemperatureCommand{Celsius: 185.0})
	want := []byte{0x02, 0x07, 0x3A}
	if !bytes.Equal(got, want) {
		t.Errorf("set-temp 185.0 = % x, want % x", got, want)
	}

	// Tenth-of-a-degree quantization survives float arithmetic.
	got = mustEncode(t, SetTemperatureCommand{Celsius: 199.9})
	want = []byte{0x02, 0x07, 0xCF} // 1999
	if !bytes.Equal(got, want) {
		t.Errorf("set-temp 199.9 = % x, want % x", got, want)
	}
}

func TestSetTemperatureRange(t *testing.T) {
	for _, celsius := range []float64{0, 174.9, 215.1, 400, -10} {
		_, err := SetTemperatureCommand{Celsius: celsius}.Encode()
		if !errors.Is(err, ErrTemperatureOutOfRange) {
			t.Errorf("Encode(%.1f) error = %v, want ErrTemperatureOutOfRange", celsius, err)
		}
	}
	for _, celsius := range []float64{MinOvenTemp, 190.5, MaxOvenTemp} {
		if _, err := (SetTemperatureCommand{Celsius: celsius}).Encode(); err != nil {
			t.Errorf("Encode(%.1f) error = %v, want nil", celsius, err)
		}
	}
}

func TestStatusRequestEncoding(t *testing.T) {
	got := mustEncode(t, StatusRequestCommand{
		Attributes: []MessageType{TypeBattery, TypeLockStatus},
	})
	// Bitmask: 1<<3 | 1<<6 = 0x48, big-endian uint64 after the opcode.
	want := []byte{0xFE, 0, 0, 0, 0, 0, 0, 0, 0x48}
	if !bytes.Equal(got, want) {
		t.Errorf("status request = % x, want % x", got, want)
	}
}

func TestStatusRequestSkipsHighOpcodes(t *testing.T) {
	// StatusUpdate (254) itself cannot be requested via the 64-bit mask.
	got := mustEncode(t, StatusRequestCommand{Attributes: []MessageType{TypeStatusUpdate}})
	want := []byte{0xFE, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("status request = % x, want % x", got, want)
	}
}

func TestEncodeDeterministicFixedLength(t *testing.T) {
	cmds := []struct {
		cmd Command
		len int
	}{
		{LockCommand{Locked: true}, 2},
		{SetTemperatureCommand{Celsius: 190}, 3},
		{SetDynamicModeCommand{Mode: ModeBoost}, 2},
		{StatusRequestCommand{Attributes: AllStatusAttributes}, 9},
	}
	for _, tc := range cmds {
		first := mustEncode(t, tc.cmd)
		second := mustEncode(t, tc.cmd)
		if !bytes.Equal(first, second) {
			t.Errorf("%T encoding not deterministic: % x vs % x", tc.cmd, first, second)
		}
		if len(first) != tc.len {
			t.Errorf("%T length = %d, want %d", tc.cmd, len(first), tc.len)
		}
	}
}

func TestDecodeBattery(t *testing.T) {
	ev := Decode([]byte{byte(TypeBattery), 73})
	b, ok := ev.(BatteryEvent)
	if !ok {
		t.Fatalf("Decode() = %T, want BatteryEvent", ev)
	}
	if b.Percent != 73 {
		t.Errorf("Percent = %d, want 73", b.Percent)
	}
}

func TestDecodeBatteryOutOfRange(t *testing.T) {
	// 150% is not a battery reading; keep the raw frame instead of guessing.
	ev := Decode([]byte{byte(TypeBattery), 150})
	if _, ok := ev.(UnknownEvent); !ok {
		t.Fatalf("Decode() = %T, want UnknownEvent", ev)
	}
}

func TestDecodeTemperatures(t *testing.T) {
	cases := []struct {
		typ  MessageType
		want float64
	}{
		{TypeActualTemp, 185.0},
		{TypeHeaterSetPoint, 185.0},
		{TypeCurrentTargetTemp, 185.0},
	}
	for _, tc := range cases {
		ev := Decode([]byte{byte(tc.typ), 0x07, 0x3A})
		temp, ok := ev.(TemperatureEvent)
		if !ok {
			t.Fatalf("Decode(%d) = %T, want TemperatureEvent", tc.typ, ev)
		}
		if temp.Attr != tc.typ || temp.Celsius != tc.want {
			t.Errorf("Decode(%d) = %+v, want %.1f", tc.typ, temp, tc.want)
		}
	}
}

func TestDecodeLockAndHeating(t *testing.T) {
	if ev := Decode([]byte{byte(TypeLockStatus), 1}); ev.(LockStateEvent).Locked != true {
		t.Error("lock status 1 should decode locked")
	}
	if ev := Decode([]byte{byte(TypeLockStatus), 0}); ev.(LockStateEvent).Locked != false {
		t.Error("lock status 0 should decode unlocked")
	}
	if ev := Decode([]byte{byte(TypeHeatingState), 1}); ev.(HeatingStateEvent).Heating != true {
		t.Error("heating state 1 should decode heating")
	}
}

func TestDecodeChargeStatus(t *testing.T) {
	ev := Decode([]byte{byte(TypeChargeStatus), 0x03})
	cs, ok := ev.(ChargeStatusEvent)
	if !ok {
		t.Fatalf("Decode() = %T, want ChargeStatusEvent", ev)
	}
	if !cs.Charging || !cs.Complete {
		t.Errorf("charge status 0x03 = %+v, want both flags", cs)
	}
}

func TestDecodeIgnoresCipherPadding(t *testing.T) {
	// Frames arrive zero-padded to the cipher block size.
	padded := make([]byte, 16)
	padded[0] = byte(TypeBattery)
	padded[1] = 73
	ev := Decode(padded)
	if b, ok := ev.(BatteryEvent); !ok || b.Percent != 73 {
		t.Errorf("Decode(padded battery) = %#v, want BatteryEvent{73}", ev)
	}
}

func TestDecodeTruncatedAndUnknown(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{byte(TypeBattery)},
		{byte(TypeActualTemp), 0x07},
		{byte(TypeSupportedAttributes), 1, 2, 3},
		{0xAB, 0xCD},
		{0x00},
	}
	for _, data := range cases {
		ev := Decode(data)
		u, ok := ev.(UnknownEvent)
		if !ok {
			t.Errorf("Decode(% x) = %T, want UnknownEvent", data, ev)
			continue
		}
		if !bytes.Equal(u.Raw, data) && len(data) > 0 {
			t.Errorf("Decode(% x) did not preserve raw bytes: % x", data, u.Raw)
		}
	}
}

func TestDecodeIsTotal(t *testing.T) {
	// Xorshift noise; every input must decode to something without panicking.
	seed := uint64(0x9E3779B97F4A7C15)
	next := func() uint64 {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		return seed
	}
	for i := 0; i < 2000; i++ {
		n := int(next() % 24)
		data := make([]byte, n)
		for j := range data {
			data[j] = byte(next())
		}
		if ev := Decode(data); ev == nil {
			t.Fatalf("Decode(% x) returned nil", data)
		}
	}
}

func TestCommandRoundTrips(t *testing.T) {
	// When the device echoes a command verbatim, decoding reconstructs the
	// field values modulo the wire quantization.
	lock := mustEncode(t, LockCommand{Locked: true})
	if ev := Decode(lock).(LockStateEvent); !ev.Locked {
		t.Error("lock command did not round-trip")
	}

	temp := mustEncode(t, SetTemperatureCommand{Celsius: 187.5})
	if ev := Decode(temp).(TemperatureEvent); ev.Celsius != 187.5 {
		t.Errorf("set-temp round-trip = %.1f, want 187.5", ev.Celsius)
	}

	status := mustEncode(t, StatusRequestCommand{Attributes: []MessageType{TypeBattery, TypeHeatingState}})
	ev := Decode(status).(SupportedAttributesEvent)
	if len(ev.Attributes) != 2 || ev.Attributes[0] != TypeBattery || ev.Attributes[1] != TypeHeatingState {
		t.Errorf("status request round-trip = %v", ev.Attributes)
	}
}

func TestDynamicModeStrings(t *testing.T) {
	if ModeBoost.String() != "boost" || ModeFlavor.String() != "flavor" {
		t.Error("dynamic mode names wrong")
	}
	if DynamicMode(99).String() != "mode(99)" {
		t.Errorf("DynamicMode(99) = %s", DynamicMode(99).String())
	}
	if _, err := (SetDynamicModeCommand{Mode: DynamicMode(99)}).Encode(); !errors.Is(err, ErrInvalidMode) {
		t.Error("invalid mode should fail to encode")
	}
}
