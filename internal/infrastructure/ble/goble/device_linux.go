//go:build linux

package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// Open brings up hci<cfg.Device> and starts a passive scan on it.
func Open(_ context.Context, cfg Config, logger Logger) (*Radio, error) {
	dev, err := linux.NewDevice(ble.OptDeviceID(cfg.Device))
	if err != nil {
		return nil, fmt.Errorf("goble: open hci%d: %w", cfg.Device, err)
	}
	ble.SetDefaultDevice(dev)

	if logger != nil {
		logger.Info("bluetooth controller ready", "device", cfg.Device)
	}
	return New(ble.Scan, dev.Stop, cfg, logger), nil
}
