package source

import (
	"fmt"
	"time"

	"github.com/itohio/gorad/pkg/config"
	"github.com/itohio/gorad/pkg/deadtime"
	"go.uber.org/zap"
)

// Env carries what sources need beyond their own channel configuration.
type Env struct {
	Logger       *zap.Logger
	PollEpsilon  time.Duration
	ClaimedPorts []string // Serial ports configured for other channels
}

// New builds the source described by a channel configuration.
func New(ch config.ChannelConfig, env Env) (Source, error) {
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("channel", ch.Name))

	kind, err := ParseKind(ch.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindAudio:
		polarity, err := ParsePolarity(ch.Audio.Polarity)
		if err != nil {
			return nil, err
		}
		return NewAudio(AudioOptions{
			Device:           ch.Audio.Device,
			SampleRate:       ch.Audio.SampleRate,
			BlockSize:        ch.Audio.BlockSize,
			PulseHeightMax:   ch.Audio.PulseHeightMax,
			ThresholdPercent: ch.Audio.ThresholdPercent,
			Polarity:         polarity,
			Logger:           logger,
		}), nil

	case KindSerial:
		return NewSerial(SerialOptions{
			Port:          ch.Serial.Port,
			BaudRate:      ch.Serial.BaudRate,
			OverflowBytes: ch.Serial.OverflowBytes,
			ReadTimeout:   ch.Serial.ReadTimeout,
			PollEpsilon:   env.PollEpsilon,
			Discover: DiscoverOptions{
				Wait:    ch.Serial.DiscoverWait,
				Exclude: env.ClaimedPorts,
			},
			Logger: logger,
		}), nil

	case KindGPIO:
		edge, err := ParseEdge(ch.GPIO.Edge)
		if err != nil {
			return nil, err
		}
		return NewGPIO(GPIOOptions{
			Pin:         ch.GPIO.Pin,
			Edge:        edge,
			PollEpsilon: env.PollEpsilon,
			Logger:      logger,
		}), nil

	case KindSimulation:
		model, err := deadtime.ParseModel(ch.Simulation.Model)
		if err != nil {
			return nil, err
		}
		return NewSimulated(SimulatedOptions{
			MeanRate:    ch.Simulation.MeanRate,
			Model:       model,
			DeadTime:    ch.DeadTime(),
			Seed:        ch.Simulation.Seed,
			PollEpsilon: env.PollEpsilon,
			Logger:      logger,
		}), nil
	}

	return nil, fmt.Errorf("unsupported source kind %v", kind)
}
