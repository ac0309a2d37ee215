//go:build darwin

package tinygo

import "tinygo.org/x/bluetooth"

// On macOS the address is a CoreBluetooth peripheral UUID, not a MAC.
func parseAddress(s string) (bluetooth.Address, error) {
	var addr bluetooth.Address
	addr.Set(s)
	return addr, nil
}
