package pax

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openpax/paxctl/internal/ble"
)

// Model is the identified device model.
type Model string

const (
	ModelUnknown Model = ""
	ModelEra     Model = "ERA"
	ModelPax3    Model = "PAX3"
)

// ProbeResult is the outcome of interrogating a peripheral's Device
// Information service.
type ProbeResult struct {
	Address string
	Info    DeviceInfo
	Model   Model
}

// ScanForDevice scans for peripherals advertising a name containing "PAX"
// and returns everything seen within timeout.
func ScanForDevice(adapter ble.Adapter, timeout time.Duration) ([]ble.Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable adapter: %v", ErrTransportFailure, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, "PAX")
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrTransportFailure, err)
	}
	return devices, nil
}

// Probe connects once, reads the device identity, and classifies the model.
// A non-Pax manufacturer is rejected with ErrWrongManufacturer.
func Probe(ctx context.Context, adapter ble.Adapter, address string) (*ProbeResult, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable adapter: %v", ErrTransportFailure, err)
	}

	conn, err := adapter.Connect(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrTransportFailure, err)
	}
	defer func() { _ = conn.Disconnect() }()

	info, err := readDeviceInfo(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: device info: %v", ErrTransportFailure, err)
	}

	if info.Manufacturer != ExpectedManufacturer {
		return nil, fmt.Errorf("%w: manufacturer %q", ErrWrongManufacturer, info.Manufacturer)
	}

	result := &ProbeResult{Address: address, Info: info}
	switch strings.ToUpper(info.Model) {
	case string(ModelEra):
		result.Model = ModelEra
	case string(ModelPax3):
		result.Model = ModelPax3
	default:
		return nil, fmt.Errorf("%w: unsupported model %q", ErrWrongManufacturer, info.Model)
	}
	return result, nil
}
