package discovery

import "fmt"

// ManualName is the name given to a device entered by address.
const ManualName = "Manual"

// Device is a discovered (or manually entered) LED matrix. It is a value:
// two devices are the same device when name and address are equal.
type Device struct {
	// Name is the advertised mDNS instance name (e.g., "neopixel-4f2a")
	Name string

	// Address is the network address used as the HTTP host (e.g., "192.168.1.130")
	Address string
}

// ManualDevice returns the synthetic device used for a manually entered address.
func ManualDevice(address string) Device {
	return Device{Name: ManualName, Address: address}
}

// IsManual reports whether d was entered by address rather than discovered.
func (d Device) IsManual() bool {
	return d.Name == ManualName
}

// String returns a human-readable string representation of the device
func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}
