package source_test

import (
	"testing"

	"github.com/itohio/gorad/pkg/config"
	"github.com/itohio/gorad/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind string
		want source.Kind
	}{
		{config.KindAudio, source.KindAudio},
		{config.KindSerial, source.KindSerial},
		{config.KindGPIO, source.KindGPIO},
		{config.KindSimulation, source.KindSimulation},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			ch := config.DefaultChannel("c", tt.kind)
			ch.GPIO.Pin = "GPIO17"
			src, err := source.New(ch, source.Env{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.Kind())
			// Nothing is acquired until Open.
			assert.NoError(t, src.Close())
		})
	}
}

func TestNew_AudioPolarity(t *testing.T) {
	ch := config.DefaultChannel("c", config.KindAudio)
	ch.Audio.Polarity = "positive"
	src, err := source.New(ch, source.Env{})
	require.NoError(t, err)

	ps, ok := src.(source.PolaritySetter)
	require.True(t, ok)
	assert.Equal(t, source.Positive, ps.Polarity())
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.ChannelConfig)
	}{
		{"kind", func(ch *config.ChannelConfig) { ch.Kind = "lidar" }},
		{"polarity", func(ch *config.ChannelConfig) { ch.Kind = config.KindAudio; ch.Audio.Polarity = "up" }},
		{"edge", func(ch *config.ChannelConfig) { ch.Kind = config.KindGPIO; ch.GPIO.Edge = "both-ish" }},
		{"model", func(ch *config.ChannelConfig) { ch.Simulation.Model = "magic" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := config.DefaultChannel("c", config.KindSimulation)
			tt.mutate(&ch)
			_, err := source.New(ch, source.Env{})
			assert.Error(t, err)
		})
	}
}

func TestParseKindAndPolarity(t *testing.T) {
	for _, k := range []source.Kind{source.KindAudio, source.KindSerial, source.KindGPIO, source.KindSimulation} {
		got, err := source.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := source.ParseKind("lidar")
	assert.Error(t, err)

	p, err := source.ParsePolarity("")
	require.NoError(t, err)
	assert.Equal(t, source.Negative, p)
	_, err = source.ParsePolarity("sideways")
	assert.Error(t, err)
}
