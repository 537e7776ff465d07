//go:build !linux

package canbus

import "errors"

var ErrNoSocketCAN = errors.New("socketcan is only available on linux")

// NewCANBus has no transport to offer off-target; use -sim or a Loopback.
func NewCANBus(ifname string) (*Loopback, error) {
	return nil, ErrNoSocketCAN
}
