// Package ble abstracts the BLE transport used to talk to a Pax vaporizer.
// It exposes connect, characteristic read/write, and notification
// subscriptions; everything protocol-specific lives in internal/pax.
package ble

import "context"

// GATT UUIDs for the Pax service and the standard Device Information service.
const (
	DeviceInfoServiceUUID = "0000180a-0000-1000-8000-00805f9b34fb"
	ManufacturerCharUUID  = "00002a29-0000-1000-8000-00805f9b34fb"
	ModelNumberCharUUID   = "00002a24-0000-1000-8000-00805f9b34fb"
	SerialNumberCharUUID  = "00002a25-0000-1000-8000-00805f9b34fb"
	HardwareRevCharUUID   = "00002a27-0000-1000-8000-00805f9b34fb"
	SoftwareRevCharUUID   = "00002a28-0000-1000-8000-00805f9b34fb"

	PaxServiceUUID    = "8e320200-64d2-11e6-bdf4-0800200c9a66"
	PaxReadCharUUID   = "8e320201-64d2-11e6-bdf4-0800200c9a66"
	PaxWriteCharUUID  = "8e320202-64d2-11e6-bdf4-0800200c9a66"
	PaxNotifyCharUUID = "8e320203-64d2-11e6-bdf4-0800200c9a66"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Read returns the current characteristic value.
	Read() ([]byte, error)
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	// A subscription dies with the underlying connection; after a reconnect a
	// new one must be created on the new Connection.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals whose advertised name contains name.
	// Returns discovered devices until ctx is cancelled or times out.
	Scan(ctx context.Context, name string) ([]Device, error)
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
