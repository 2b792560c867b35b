package acquire

import (
	"context"
	"fmt"

	"github.com/itohio/gorad/pkg/config"
	"github.com/itohio/gorad/pkg/source"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SourceFactory builds the source of a channel.
type SourceFactory func(ch config.ChannelConfig, env source.Env) (source.Source, error)

// StationOptions configures a Station.
type StationOptions struct {
	Logger  *zap.Logger
	Sources SourceFactory // Defaults to source.New
}

// Station is the set of channels of one configuration. Channels start and
// fail independently.
type Station struct {
	log      *zap.Logger
	channels []*Channel
}

// NewStation builds a channel for every configured channel. Serial ports
// named by one channel are excluded from discovery by the others.
func NewStation(cfg *config.Config, opts StationOptions) (*Station, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sources == nil {
		opts.Sources = source.New
	}

	s := &Station{log: opts.Logger.Named("station")}
	for _, ch := range cfg.Channels {
		env := source.Env{
			Logger:       opts.Logger,
			PollEpsilon:  cfg.Acquisition.PollEpsilon,
			ClaimedPorts: claimedPorts(cfg.Channels, ch.Name),
		}
		src, err := opts.Sources(ch, env)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		c, err := NewChannel(ch, src, Options{
			StopTimeout: cfg.Acquisition.StopTimeout,
			Logger:      opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		s.channels = append(s.channels, c)
	}
	return s, nil
}

// claimedPorts returns the explicit serial ports of every channel but name.
func claimedPorts(channels []config.ChannelConfig, name string) []string {
	var ports []string
	for _, ch := range channels {
		if ch.Name == name || ch.Kind != config.KindSerial {
			continue
		}
		if ch.Serial.Port != "" && ch.Serial.Port != config.Auto {
			ports = append(ports, ch.Serial.Port)
		}
	}
	return ports
}

// Start starts every channel. Channels that fail stay disconnected while the
// rest keep running; the failures are returned combined.
func (s *Station) Start(ctx context.Context) error {
	var errs error
	started := 0
	for _, c := range s.channels {
		if err := c.Start(ctx); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		started++
	}
	s.log.Info("station started", zap.Int("running", started), zap.Int("channels", len(s.channels)))
	return errs
}

// Stop stops every channel and returns the combined stop failures.
func (s *Station) Stop() error {
	var errs error
	for _, c := range s.channels {
		errs = multierr.Append(errs, c.Stop())
	}
	return errs
}

// Channels returns the channels in configuration order.
func (s *Station) Channels() []*Channel {
	out := make([]*Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// Channel returns the channel with the given name.
func (s *Station) Channel(name string) (*Channel, bool) {
	for _, c := range s.channels {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Running returns the number of running channels.
func (s *Station) Running() int {
	n := 0
	for _, c := range s.channels {
		if c.IsRunning() {
			n++
		}
	}
	return n
}

// Snapshots returns the latest snapshot of every channel.
func (s *Station) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c.Snapshot())
	}
	return out
}

// OnUpdate registers callback on every channel.
func (s *Station) OnUpdate(callback func(Snapshot)) {
	for _, c := range s.channels {
		c.OnUpdate(callback)
	}
}
