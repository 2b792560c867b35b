package source

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/multierr"
)

// portAudioReader is a mono 16-bit PortAudio input stream.
type portAudioReader struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPortAudio opens and starts a blocking mono int16 input stream.
// PortAudio stays initialized until the returned reader is closed.
func OpenPortAudio(device string, sampleRate float64, blockSize int) (reader BlockReader, err error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio: %v", ErrDeviceUnavailable, err)
	}
	defer func() {
		if err != nil {
			portaudio.Terminate()
		}
	}()

	dev, err := inputDevice(device)
	if err != nil {
		return nil, err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = sampleRate
	params.FramesPerBuffer = blockSize

	buf := make([]int16, blockSize)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open stream on %q: %v", ErrDeviceUnavailable, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start stream on %q: %v", ErrDeviceUnavailable, dev.Name, err)
	}

	return &portAudioReader{stream: stream, buf: buf}, nil
}

// AudioInputs lists the names of devices with input channels.
func AudioInputs() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

func inputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "auto" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default audio input: %v", ErrDeviceUnavailable, err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: list audio devices: %v", ErrDeviceUnavailable, err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: audio input %q not found", ErrDeviceUnavailable, name)
}

func (r *portAudioReader) ReadBlock(dst []int16) error {
	err := r.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return err
	}
	copy(dst, r.buf)
	if err != nil {
		return ErrOverflow
	}
	return nil
}

func (r *portAudioReader) Close() error {
	err := multierr.Combine(r.stream.Stop(), r.stream.Close())
	return multierr.Append(err, portaudio.Terminate())
}
