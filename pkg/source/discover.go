package source

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// DefaultDiscoverWait is how long each candidate port is listened to.
const DefaultDiscoverWait = 3 * time.Second

// PortInfo describes a serial port.
type PortInfo struct {
	Name        string
	Description string
	IsUSB       bool
	VID, PID    string
}

// Ports returns a list of available serial ports with USB details where known.
func Ports() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		result := make([]PortInfo, 0, len(details))
		for _, d := range details {
			desc := d.Name
			if d.Product != "" {
				desc = d.Product
			}
			result = append(result, PortInfo{
				Name:        d.Name,
				Description: desc,
				IsUSB:       d.IsUSB,
				VID:         d.VID,
				PID:         d.PID,
			})
		}
		return result, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]PortInfo, 0, len(names))
	for _, name := range names {
		result = append(result, PortInfo{Name: name, Description: name})
	}
	return result, nil
}

// DiscoverOptions configures DiscoverSerial.
type DiscoverOptions struct {
	BaudRate int
	Wait     time.Duration            // Listening window per port
	Exclude  []string                 // Ports claimed by other devices
	Opener   PortOpener               // Defaults to OpenSerialPort
	Lister   func() ([]string, error) // Defaults to serial.GetPortsList
	Logger   *zap.Logger
}

// DiscoverSerial finds the pulse line: the first port, not excluded, that
// produces unsolicited bytes within the wait window. No command is sent.
// Every opened port is closed again before returning.
func DiscoverSerial(ctx context.Context, opts DiscoverOptions) (string, error) {
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultDiscoverWait
	}
	if opts.Opener == nil {
		opts.Opener = OpenSerialPort
	}
	if opts.Lister == nil {
		opts.Lister = serial.GetPortsList
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("discover")

	names, err := opts.Lister()
	if err != nil {
		return "", fmt.Errorf("%w: list serial ports: %v", ErrDeviceUnavailable, err)
	}

	for _, name := range names {
		if slices.Contains(opts.Exclude, name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		found, err := listen(ctx, opts, name)
		if err != nil {
			log.Debug("skipping port", zap.String("port", name), zap.Error(err))
			continue
		}
		if found {
			log.Info("pulse line discovered", zap.String("port", name))
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: no serial port produced pulses within %v", ErrDeviceUnavailable, opts.Wait)
}

// listen reports whether port name receives any byte within the wait window.
func listen(ctx context.Context, opts DiscoverOptions, name string) (bool, error) {
	port, err := opts.Opener(name, opts.BaudRate)
	if err != nil {
		return false, err
	}
	defer port.Close()

	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		return false, err
	}

	buf := make([]byte, 64)
	deadline := time.Now().Add(opts.Wait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		n, err := port.Read(buf)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}
