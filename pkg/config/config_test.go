package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Acquisition.StopTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Acquisition.PollEpsilon)
	require.Len(t, cfg.Channels, 1)

	ch := cfg.Channels[0]
	assert.Equal(t, KindSimulation, ch.Kind)
	assert.Equal(t, ModelNone, ch.Correction)
	assert.Equal(t, 1.0, ch.CalibrationFactor)
	assert.Equal(t, 64, ch.Audio.BlockSize)
	assert.Equal(t, float64(44100), ch.Audio.SampleRate)
	assert.Equal(t, float64(32768), ch.Audio.PulseHeightMax)
	assert.Equal(t, float64(50), ch.Audio.ThresholdPercent)
	assert.Equal(t, "negative", ch.Audio.Polarity)
	assert.Equal(t, 921600, ch.Serial.BaudRate)
	assert.Equal(t, Auto, ch.Serial.Port)
	assert.Equal(t, 4000, ch.Serial.OverflowBytes)
	assert.Equal(t, "falling", ch.GPIO.Edge)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := LoadFs(afero.NewMemMapFs(), "nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Len(t, cfg.Channels, 1)
}

func TestLoad_ValidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	yamlContent := `
log:
  level: debug
  format: json

acquisition:
  stop_timeout: 2s

channels:
  - name: tube1
    kind: serial
    dead_time_us: 125
    correction: paralyzing
    serial:
      port: /dev/ttyUSB0
      baud_rate: 460800
  - name: tube2
    kind: audio
    dead_time_us: 90
    correction: non-paralyzing
    calibration_factor: 1.05
    audio:
      block_size: 128
      threshold_percent: 30
      polarity: positive
  - name: tube3
    kind: gpio
    gpio:
      pin: GPIO17
      edge: rising
`
	require.NoError(t, afero.WriteFile(fs, "config.yaml", []byte(yamlContent), 0644))

	cfg, err := LoadFs(fs, "config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.Acquisition.StopTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Acquisition.PollEpsilon) // default
	require.Len(t, cfg.Channels, 3)

	serial := cfg.Channels[0]
	assert.Equal(t, KindSerial, serial.Kind)
	assert.Equal(t, ModelParalyzing, serial.Correction)
	assert.Equal(t, 125*time.Microsecond, serial.DeadTime())
	assert.Equal(t, "/dev/ttyUSB0", serial.Serial.Port)
	assert.Equal(t, 460800, serial.Serial.BaudRate)
	assert.Equal(t, 100*time.Millisecond, serial.Serial.ReadTimeout) // default

	audio := cfg.Channels[1]
	assert.Equal(t, 128, audio.Audio.BlockSize)
	assert.Equal(t, float64(30), audio.Audio.ThresholdPercent)
	assert.Equal(t, "positive", audio.Audio.Polarity)
	assert.Equal(t, 1.05, audio.CalibrationFactor)
	assert.Equal(t, float64(32768), audio.Audio.PulseHeightMax) // default

	gpio := cfg.Channels[2]
	assert.Equal(t, "GPIO17", gpio.GPIO.Pin)
	assert.Equal(t, "rising", gpio.GPIO.Edge)
	assert.Equal(t, ModelNone, gpio.Correction)
}

func TestLoad_InvalidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.yaml", []byte("invalid: yaml: content: ["), 0644))

	cfg, err := LoadFs(fs, "bad.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown kind",
			yaml: "channels:\n  - name: a\n    kind: lidar\n",
		},
		{
			name: "unknown correction",
			yaml: "channels:\n  - name: a\n    kind: serial\n    correction: magic\n",
		},
		{
			name: "threshold above 100",
			yaml: "channels:\n  - name: a\n    kind: audio\n    audio:\n      threshold_percent: 150\n",
		},
		{
			name: "gpio without pin",
			yaml: "channels:\n  - name: a\n    kind: gpio\n",
		},
		{
			name: "duplicate names",
			yaml: "channels:\n  - name: a\n    kind: serial\n  - name: a\n    kind: serial\n",
		},
		{
			name: "negative dead time",
			yaml: "channels:\n  - name: a\n    kind: serial\n    dead_time_us: -1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "c.yaml", []byte(tt.yaml), 0644))

			cfg, err := LoadFs(fs, "c.yaml")
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := Default()
	cfg.Channels = append(cfg.Channels, DefaultChannel("tube1", KindSerial))
	cfg.Channels[1].Serial.Port = "/dev/ttyUSB0"
	cfg.Channels[1].DeadTimeUS = 125

	require.NoError(t, cfg.SaveFs(fs, "out.yaml"))

	loaded, err := LoadFs(fs, "out.yaml")
	require.NoError(t, err)
	require.Len(t, loaded.Channels, 2)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Channels[1].Serial.Port)
	assert.Equal(t, float64(125), loaded.Channels[1].DeadTimeUS)
}
